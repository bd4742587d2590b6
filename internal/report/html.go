package report

import (
	"html/template"
	"io"
	"strings"
)

const syscharTemplate = `<!DOCTYPE html>
<html lang="zh-CN">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>ovalprobe 系统特征报告</title>
    <style>
        :root {
            --bg-color: #f8f9fa;
            --card-bg: #ffffff;
            --text-color: #333;
            --error: #dc3545;
            --incomplete: #ffc107;
            --complete: #28a745;
            --other: #17a2b8;
            --border-color: #dee2e6;
        }
        body { font-family: 'Segoe UI', sans-serif; background: var(--bg-color); color: var(--text-color); margin: 0; padding: 20px; }
        .container { max-width: 1200px; margin: 0 auto; }
        .header { text-align: center; margin-bottom: 30px; }
        .stats { display: flex; gap: 20px; margin-bottom: 20px; }
        .stat-card { flex: 1; background: var(--card-bg); padding: 20px; border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); text-align: center; }
        .stat-num { font-size: 2em; font-weight: bold; }
        .complete { color: var(--complete); }
        .incomplete { color: var(--incomplete); }
        .error { color: var(--error); }
        .other { color: var(--other); }

        .object-card { background: var(--card-bg); border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); margin-bottom: 15px; border-left: 5px solid var(--other); overflow: hidden; }
        .object-card.complete { border-left-color: var(--complete); }
        .object-card.incomplete { border-left-color: var(--incomplete); }
        .object-card.error { border-left-color: var(--error); }

        .object-header { padding: 15px; background: rgba(0,0,0,0.02); display: flex; justify-content: space-between; cursor: pointer; }
        .object-body { padding: 15px; display: none; border-top: 1px solid var(--border-color); }
        .object-body.open { display: block; }
        table { border-collapse: collapse; width: 100%; margin-bottom: 10px; }
        td, th { border: 1px solid var(--border-color); padding: 4px 8px; text-align: left; }
        code { background: #eee; padding: 2px 5px; border-radius: 3px; word-break: break-all; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>ovalprobe 系统特征报告</h1>
            <p>会话 {{ .Doc.SessionID }} · 生成时间 {{ .Doc.Generated.Format "2006-01-02 15:04:05" }}</p>
            {{ with .Doc.System }}<p>{{ .Hostname }} · {{ .OSName }} {{ .OSVersion }} · {{ .Architecture }}</p>{{ end }}
        </div>

        <div class="stats">
            <div class="stat-card"><div class="stat-num complete">{{ index .Stats "complete" }}</div><div>complete</div></div>
            <div class="stat-card"><div class="stat-num incomplete">{{ index .Stats "incomplete" }}</div><div>incomplete</div></div>
            <div class="stat-card"><div class="stat-num error">{{ index .Stats "error" }}</div><div>error</div></div>
            <div class="stat-card"><div class="stat-num other">{{ index .Stats "other" }}</div><div>其他</div></div>
        </div>

        {{ range .Doc.Objects }}
        <div class="object-card {{ flagClass .Flag }}">
            <div class="object-header" onclick="this.nextElementSibling.classList.toggle('open')">
                <div><b>[{{ .Type }}]</b> {{ .ID }} {{ if .Comment }}- {{ .Comment }}{{ end }}</div>
                <div>{{ .Flag }} · {{ len .Items }} ▼</div>
            </div>
            <div class="object-body">
                {{ range .Items }}
                <table>
                    <tr><th colspan="3">{{ .Name }} ({{ .Status }})</th></tr>
                    {{ range .Fields }}
                    <tr><td>{{ .Name }}</td><td><code>{{ .Value }}</code></td><td>{{ .Status }} {{ .Message }}</td></tr>
                    {{ end }}
                </table>
                {{ end }}
                {{ range .Messages }}<div>[{{ .Level }}] {{ .Text }}</div>{{ end }}
            </div>
        </div>
        {{ else }}
        <div style="text-align: center; padding: 40px; color: #666;">没有收集任何对象</div>
        {{ end }}
    </div>
</body>
</html>
`

type htmlData struct {
	Doc   *Document
	Stats map[string]int
}

func flagClass(flag string) string {
	switch flag {
	case "complete", "incomplete", "error":
		return flag
	}
	return "other"
}

var syscharHTML = template.Must(template.New("syschar").
	Funcs(template.FuncMap{"flagClass": flagClass}).
	Parse(syscharTemplate))

func WriteHTML(w io.Writer, doc *Document) error {
	stats := map[string]int{"complete": 0, "incomplete": 0, "error": 0, "other": 0}
	for _, o := range doc.Objects {
		stats[flagClass(strings.ToLower(o.Flag))]++
	}
	return syscharHTML.Execute(w, htmlData{Doc: doc, Stats: stats})
}
