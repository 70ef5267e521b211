package query

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ashureev/trainingdesk/internal/domain"
	"github.com/ashureev/trainingdesk/internal/oracle"
)

const specSystemPrompt = `You are a cybersecurity-training SQLite query generator. Every query must be valid SQLite and about the training programme.
You receive natural-language questions from employees and from the security office.
Convert the user's request into a JSON object with exactly these keys:

1. "sql": one SQLite statement of the form SELECT <columns> FROM employees WHERE <conditions>;
2. "target": "SELF" if the user asks only about themselves (no comparison, no mention of others), otherwise "OTHER".
3. "error": "FORBIDDEN" if the user asks to modify, update, delete, insert, reset or change data, otherwise "OK".
4. "scope": "IN_SCOPE" if the question is about the cybersecurity training programme, otherwise "OUT_OF_SCOPE".

Available columns in the employees table:
%s

NOTES ABOUT DATA STRUCTURE:
- EMPLOYEE_NAME and EMPLOYEE_LAST_NAME hold the first and last name.
- Each video has two columns: START_<N>_VIDEO_DATE and FINISH_<N>_VIDEO_DATE.
- There are exactly 4 videos: FIRST, SECOND, THIRD and FOURTH, tracked independently.
- START and FINISH values are strings in the format 'YYYY-MM-DD HH:MM:SS'; use julianday for date arithmetic.

ABOUT VALUE MEANING:
- START_x IS NULL means the employee has not started the video.
- START_x IS NOT NULL AND FINISH_x IS NULL means the video is in progress.
- FINISH_x IS NOT NULL means the employee finished the video.

LOGICAL VALIDATION RULES:
- Ignore NULL values when computing MIN, MAX or AVG.
- For "how long" questions require START_x IS NOT NULL AND FINISH_x IS NOT NULL and select both columns.
- The fastest employee over several videos minimises the sum of (FINISH_i - START_i) over those videos.
- "Started" means START_x IS NOT NULL; "finished" means FINISH_x IS NOT NULL.
- "In progress" means START_x IS NOT NULL AND FINISH_x IS NULL; "did not start" means START_x IS NULL.
- "Has not finished yet" means FINISH_x IS NULL regardless of start.

SECURITY GUARDRAILS:
- Read-only. Never produce UPDATE, DELETE, INSERT or ALTER.
- Always select EMPLOYEE_ID when the question is about specific employees.
- Return ONLY the JSON object, with no explanations, markdown or comments.

CONTEXTUAL USER INFO:
- The user's identity is given with each request. For questions about "me", "my progress" and so on,
  filter with WHERE EMPLOYEE_ID = '<their id>' and set "target" to "SELF".`

const narrationSystemPrompt = `You are a cybersecurity training assistant.
Write a short, clear, human reply to the user's question.
You receive the user's identity, their question, the query that was executed and the retrieved data.

Guidelines:
- Base the answer ONLY on the retrieved data.
- If the data is empty or contains nulls, explain that the condition was most likely not met.
- NEVER show SQL, table names or column names to the user.
- Phrase numbers naturally, for example "it took you about 3 hours".
- Summarise multiple results concisely.
- Answer in English unless the user's question is in Hebrew, then answer in Hebrew.`

const (
	specTemperature      = 0
	narrationTemperature = 0.6
)

func specRequest(columns []string, history domain.Transcript, id domain.Identity, text string) oracle.Request {
	return oracle.Request{
		Purpose: oracle.PurposeQuery,
		System:  fmt.Sprintf(specSystemPrompt, strings.Join(columns, ", ")),
		Context: history,
		User: fmt.Sprintf("User info: %s\n\nUser last query: %s\n\nReturn only the JSON object.",
			identityJSON(id), text),
		Temperature: specTemperature,
	}
}

func narrationRequest(id domain.Identity, text, sql string, rs domain.ResultSet) oracle.Request {
	data, err := json.Marshal(rs)
	if err != nil {
		data = []byte(`{"columns":[],"rows":[]}`)
	}
	return oracle.Request{
		Purpose: oracle.PurposeNarrate,
		System:  narrationSystemPrompt,
		User: fmt.Sprintf("User info: %s\nUser message: %s\nSQL query used: %s\nRetrieved data: %s\n\nGenerate the final answer for the user.",
			identityJSON(id), text, sql, data),
		Temperature: narrationTemperature,
	}
}

func identityJSON(id domain.Identity) string {
	data, err := json.Marshal(map[string]string{
		"EMPLOYEE_NAME":     id.Name,
		"EMPLOYEE_ID":       id.ID,
		"EMPLOYEE_DIVISION": id.Division,
	})
	if err != nil {
		return "{}"
	}
	return string(data)
}
