package herald

import (
	_ "embed"
	"text/template"
)

//go:embed templates/planner_prompt.md
var plannerPromptTemplate string

var plannerTmpl *template.Template

func init() {
	plannerTmpl = template.Must(template.New("planner").Parse(plannerPromptTemplate))
}

type plannerTemplateData struct {
	ToolCategories string
	ToolRules      string
	Now            string
	Timezone       string
	Locale         string
	Providers      string
}
