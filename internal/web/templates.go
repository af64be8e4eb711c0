package web

import (
	"html/template"
)

var dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>VNCGuard</title>
    <style>
        * { box-sizing: border-box; margin: 0; padding: 0; }

        :root {
            --bg-primary: #0a0f0a;
            --bg-card: rgba(0, 40, 0, 0.4);
            --border-color: #1a4a1a;
            --text-primary: #00ff41;
            --text-secondary: #00cc33;
            --text-dim: #336633;
            --danger: #ff3333;
            --warn: #ffaa00;
        }

        body {
            background: var(--bg-primary);
            color: var(--text-primary);
            font-family: 'Courier New', monospace;
            padding: 20px;
        }

        h1 { margin-bottom: 4px; }
        .sub { color: var(--text-dim); margin-bottom: 20px; }

        .grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(420px, 1fr)); gap: 16px; }

        .card {
            background: var(--bg-card);
            border: 1px solid var(--border-color);
            border-radius: 6px;
            padding: 16px;
        }
        .card h2 { font-size: 1rem; margin-bottom: 12px; color: var(--text-secondary); }

        table { width: 100%; border-collapse: collapse; font-size: 0.85rem; }
        th, td { text-align: left; padding: 4px 8px; border-bottom: 1px solid var(--border-color); }
        th { color: var(--text-dim); }

        .sev-high, .sev-critical { color: var(--danger); }
        .sev-medium { color: var(--warn); }
        .sev-low { color: var(--text-secondary); }

        #feed { max-height: 260px; overflow-y: auto; font-size: 0.8rem; }
        #feed div { padding: 2px 0; border-bottom: 1px dotted var(--border-color); }
    </style>
</head>
<body>
    <h1>VNCGuard</h1>
    <p class="sub">session monitoring &middot; anomaly detection &middot; automated response
        {{if .model_ready}}&middot; models ready{{else}}&middot; models training{{end}}</p>

    <div class="grid">
        <div class="card">
            <h2>Active Sessions</h2>
            <table>
                <tr><th>Client</th><th>Server</th><th>MB</th><th>Risk</th></tr>
                {{range .active_sessions}}
                <tr>
                    <td>{{.ClientIP}}:{{.ClientPort}}</td>
                    <td>{{.ServerIP}}:{{.ServerPort}}</td>
                    <td>{{printf "%.1f" .DataTransferredMB}}</td>
                    <td>{{printf "%.0f" .RiskScore}}</td>
                </tr>
                {{else}}
                <tr><td colspan="4">no active sessions</td></tr>
                {{end}}
            </table>
        </div>

        <div class="card">
            <h2>Recent Threats</h2>
            <table>
                <tr><th>Time</th><th>Type</th><th>Severity</th><th>Source</th><th>Action</th></tr>
                {{range .recent_threats}}
                <tr>
                    <td>{{.Timestamp.Format "15:04:05"}}</td>
                    <td>{{.ThreatType}}</td>
                    <td class="sev-{{.Severity}}">{{.Severity}}</td>
                    <td>{{.SourceIP}}</td>
                    <td>{{.ActionTaken}}</td>
                </tr>
                {{else}}
                <tr><td colspan="5">no threats recorded</td></tr>
                {{end}}
            </table>
        </div>

        <div class="card">
            <h2>Active Blocks</h2>
            <table>
                <tr><th>Address</th><th>Reason</th><th>Expires</th></tr>
                {{range .blocks}}
                <tr>
                    <td>{{.Address}}</td>
                    <td>{{.Reason}}</td>
                    <td>{{if .ExpiresAt}}{{.ExpiresAt.Format "15:04:05"}}{{else}}never{{end}}</td>
                </tr>
                {{else}}
                <tr><td colspan="3">no active blocks</td></tr>
                {{end}}
            </table>
        </div>

        <div class="card">
            <h2>Baseline</h2>
            <table>
                <tr><td>samples</td><td>{{.baseline.Samples}}</td></tr>
                <tr><td>data transfer</td><td>{{printf "%.1f" .baseline.AvgDataTransferMB}} &plusmn; {{printf "%.1f" .baseline.StdDataTransferMB}} MB</td></tr>
                <tr><td>duration</td><td>{{printf "%.2f" .baseline.AvgDurationHours}} &plusmn; {{printf "%.2f" .baseline.StdDurationHours}} h</td></tr>
            </table>
        </div>

        <div class="card">
            <h2>Live Events</h2>
            <div id="feed"></div>
        </div>
    </div>

    <script>
        const feed = document.getElementById('feed');
        const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws');
        ws.onmessage = (msg) => {
            const ev = JSON.parse(msg.data);
            const line = document.createElement('div');
            line.textContent = new Date(ev.timestamp).toLocaleTimeString() + '  ' + ev.type;
            feed.prepend(line);
            while (feed.childElementCount > 100) feed.lastChild.remove();
        };
        setInterval(() => location.reload(), 30000);
    </script>
</body>
</html>`

func getDashboardTemplate() *template.Template {
	return template.Must(template.New("dashboard").Parse(dashboardHTML))
}
