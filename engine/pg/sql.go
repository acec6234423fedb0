package pg

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/zensgit/metasheet2-sub006/engine"
)

var (
	sqlTemplateFunctions = template.FuncMap{
		"quoteString": quoteString,
	}

	sqlActivityInstanceQuery  *template.Template = newSqlTemplate("activity_instance_query.sql")
	sqlExternalTaskLock       *template.Template = newSqlTemplate("external_task_lock.sql")
	sqlExternalTaskQuery      *template.Template = newSqlTemplate("external_task_query.sql")
	sqlIncidentQuery          *template.Template = newSqlTemplate("incident_query.sql")
	sqlMessageQuery           *template.Template = newSqlTemplate("message_query.sql")
	sqlProcessDefinitionQuery *template.Template = newSqlTemplate("process_definition_query.sql")
	sqlProcessInstanceQuery   *template.Template = newSqlTemplate("process_instance_query.sql")
	sqlSignalQuery            *template.Template = newSqlTemplate("signal_query.sql")
	sqlTimerJobLock           *template.Template = newSqlTemplate("timer_job_lock.sql")
	sqlTimerJobQuery          *template.Template = newSqlTemplate("timer_job_query.sql")
	sqlUserTaskQuery          *template.Template = newSqlTemplate("user_task_query.sql")
)

func newSqlTemplate(name string) *template.Template {
	return template.Must(template.New(name).Funcs(sqlTemplateFunctions).ParseFS(resources, "sql/"+name))
}

// executeQueryTemplate renders a query template with the columns, criteria and options of a query.
func executeQueryTemplate(t *template.Template, columns string, criteria any, options engine.QueryOptions) (string, error) {
	var sql bytes.Buffer
	if err := t.Execute(&sql, map[string]any{
		"columns": columns,
		"c":       criteria,
		"o":       options,
	}); err != nil {
		return "", fmt.Errorf("failed to execute %s template: %v", t.Name(), err)
	}
	return sql.String(), nil
}

// copied from https://github.com/jackc/pgx/blob/v5.5.0/internal/sanitize/sanitize.go#L90
func quoteString(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}
