package status

import "html/template"

type statusTemplateData struct {
	Version     string
	Mode        string
	Connected   bool
	SessionOpen bool
	QueueDepth  int
	Dropped     uint64
	Log         string

	CSRFField template.HTML
}

const templateString = `
<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1, shrink-to-fit=no">
  <title>aoactld status</title>
  <style>
    body {
      font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", "Roboto", "Helvetica Neue", Arial, sans-serif;
    }

    p {
      color: #858585;
    }

    .inner-container {
      max-width: 1024px;
      margin: 0 auto;
      text-align: center;
      border-radius: 4px;
    }

    .item {
      border: 1px solid lightgray;
      border-radius: 4px;
      min-width: 320px;
      max-width: 500px;
      margin: 20px auto;
      padding: 10px;
      text-align: left;
    }

    .badge {
      display: inline-block;
      padding: 6px 10px 6px 10px;
      border: 1px solid #01B757;
      border-radius: 4px;
      color: #01B757;
    }

    .badge.off {
      border-color: #858585;
      color: #858585;
    }

    textarea {
      width: 100%;
      height: 400px;
      font-family: monospace;
      font-size: 11px;
    }
  </style>
</head>
<body>
  <div class="inner-container">
    <h1>aoactld</h1>
    <p>version {{.Version}}</p>

    <div class="item">
      <h3>Gadget</h3>
      <p>mode: <span class="badge{{if eq .Mode "none"}} off{{end}}">{{.Mode}}</span></p>
      <p>host connected: {{.Connected}}</p>
      <p>control session open: {{.SessionOpen}}</p>
      <p>queued events: {{.QueueDepth}}, dropped: {{.Dropped}}</p>
    </div>

    <div class="item">
      <h3>Log</h3>
      <textarea readonly>{{.Log}}</textarea>
      <form action="/status/log.gz" method="post">
        {{.CSRFField}}
        <button type="submit">Download detailed log</button>
      </form>
    </div>
  </div>
</body>
</html>
`

var statusTemplate = template.Must(template.New("status").Parse(templateString))
