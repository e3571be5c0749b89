package config

import (
	"bytes"
	"fmt"
	"text/template"
)

// TemplateParams fills the briefship.yaml skeleton written by init.
type TemplateParams struct {
	InstanceID string
	Region     string
	Branch     string
	AppDir     string
}

var projectTemplate = template.Must(template.New(FileName).Parse(`# briefship deploy target.
# Values here are overridden by BRIEFSHIP_* environment variables.

# EC2 instance running the bot (must have the SSM agent online).
instance_id: {{ printf "%q" .InstanceID }}
{{- if .Region }}
region: {{ .Region }}
{{- else }}
# region: eu-central-1
{{- end }}
# profile: default

# Local commits are pushed here before the instance pulls them.
remote: origin
{{- if .Branch }}
branch: {{ .Branch }}
{{- end }}

# Checkout on the instance and the user that owns it.
app_dir: {{ .AppDir }}
run_as: ec2-user
compose_file: docker-compose.yml
# services: [bot]

poll_interval: 5s
timeout: 10m
log_tail: 50

# The bot refuses to start without these keys in its env file.
env_file: .env
required_env:
  - TELEGRAM_BOT_TOKEN

history_dir: .briefship/history

notify:
  when: failure # always | failure | never
  telegram:
    # chat_id: 123456789
    token_env: BRIEFSHIP_TELEGRAM_TOKEN
`))

// RenderTemplate returns a commented briefship.yaml for init.
func RenderTemplate(params TemplateParams) ([]byte, error) {
	if params.AppDir == "" {
		params.AppDir = DefaultAppDir
	}
	var buf bytes.Buffer
	if err := projectTemplate.Execute(&buf, params); err != nil {
		return nil, fmt.Errorf("rendering %s: %w", FileName, err)
	}
	return buf.Bytes(), nil
}
