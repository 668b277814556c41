package planloop

import (
	_ "embed"
	"text/template"
)

//go:embed templates/instruction_prompt.md
var instructionPromptTemplate string

//go:embed templates/verification_prompt.md
var verificationPromptTemplate string

var (
	instructionTmpl  *template.Template
	verificationTmpl *template.Template
)

func init() {
	instructionTmpl = template.Must(template.New("instruction").Parse(instructionPromptTemplate))
	verificationTmpl = template.Must(template.New("verification").Parse(verificationPromptTemplate))
}

type instructionTemplateData struct {
	Instruction     string
	TaskID          string
	TaskName        string
	TaskDescription string
	Params          string
}

type verificationTemplateData struct {
	PlanName            string
	MainTaskName        string
	MainTaskDescription string
	TaskID              string
	TaskName            string
	TaskDescription     string
}
