package web

import (
	"html/template"
	"net/http"

	"multi-serial-monitor/config"
)

const htmlTemplate = `
<!DOCTYPE html>
<html>
<head>
    <title>Serial Monitor</title>
    <meta charset="utf-8">
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; background-color: #f5f5f5; }
        .container { max-width: 1400px; margin: 0 auto; display: grid; grid-template-columns: 2fr 1fr; gap: 10px; }
        .card { background: white; padding: 20px; border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        .open { color: #4CAF50; font-weight: bold; }
        .error { color: #f44336; font-weight: bold; }
        .closed, .unconfigured { color: #888; font-weight: bold; }
        button { background-color: #2196F3; color: white; border: none; padding: 8px 16px; margin: 4px; border-radius: 4px; cursor: pointer; }
        button:hover { background-color: #1976D2; }
        input, select { padding: 6px; margin: 4px; border: 1px solid #ddd; border-radius: 4px; }
        label { display: inline-block; width: 80px; }
        .output { height: 520px; overflow-y: scroll; background-color: #000; color: #0f0; padding: 10px; font-family: monospace; font-size: 13px; white-space: pre-wrap; }
        .log { height: 150px; overflow-y: scroll; background-color: #111; color: #ccc; padding: 10px; font-family: monospace; font-size: 12px; }
        .full { grid-column: 1 / span 2; }
        h1 { color: #333; text-align: center; }
        h2 { color: #555; border-bottom: 2px solid #2196F3; padding-bottom: 5px; }
    </style>
</head>
<body>
    <h1>Serial Monitor</h1>
    <div class="container">
        <div class="card">
            <h2>Output <button onclick="copyOutput()">Copy</button></h2>
            <div id="output" class="output"></div>
            <div>
                <input id="send-text" size="60" placeholder="text to send (\n, \r, \xNN escapes)"
                       onkeydown="if (event.key === 'Enter' && document.getElementById('send-enter').checked) send()">
                <button onclick="send()">Send</button>
                <input type="checkbox" id="send-enter" checked> Send on Enter
            </div>
        </div>
        <div class="card">
            <h2>Devices</h2>
            <button onclick="addDevice()">New Device</button>
            <select id="devices" onchange="selectDevice(this.value)"></select>
            <div id="device-form">
                <p><label>name:</label><input id="f-name"><button onclick="rename()">Rename</button></p>
                <p><label>state:</label><span id="f-state"></span> <span id="f-detail"></span></p>
                <p><label>location:</label><select id="f-location"></select>
                   <input id="f-location-manual" placeholder="or type a path" size="14">
                   <button onclick="refreshPorts()">Refresh</button></p>
                <p><label>baudrate:</label><select id="f-baud">
                   {{range .BaudRates}}<option value="{{.}}">{{.}}</option>{{end}}
                   </select></p>
                <p><label>encoding:</label><select id="f-encoding">
                   {{range .Encodings}}<option value="{{.}}">{{.}}</option>{{end}}
                   </select></p>
                <p><label>stopbits:</label><select id="f-stopbits">
                   {{range .StopBits}}<option value="{{.}}">{{.}}</option>{{end}}
                   </select></p>
                <button onclick="apply()">Apply</button>
                <button onclick="closeDevice()">Close</button>
                <button onclick="removeDevice()">Remove</button>
            </div>
        </div>
        <div class="card full">
            <h2>Log</h2>
            <div id="log" class="log"></div>
        </div>
    </div>

    <script>
        let devices = [];

        async function post(url, body) {
            const resp = await fetch(url, {
                method: 'POST',
                headers: {'Content-Type': 'application/json'},
                body: body === undefined ? undefined : JSON.stringify(body),
            });
            const data = await resp.json();
            if (!resp.ok) { alert(data.error || resp.statusText); }
            await refreshStatus();
            return data;
        }

        function selected() { return devices.find(d => d.selected) || devices[0]; }

        async function refreshStatus() {
            devices = await (await fetch('/status')).json();
            const sel = document.getElementById('devices');
            sel.innerHTML = '';
            for (const d of devices) {
                const opt = document.createElement('option');
                opt.value = d.name; opt.textContent = d.name; opt.selected = d.selected;
                sel.appendChild(opt);
            }
            const d = selected();
            if (!d) return;
            document.getElementById('f-name').value = d.name;
            const state = document.getElementById('f-state');
            state.textContent = d.state; state.className = d.state;
            document.getElementById('f-detail').textContent = d.detail || '';
        }

        async function refreshPorts() {
            const data = await (await fetch('/ports')).json();
            const sel = document.getElementById('f-location');
            sel.innerHTML = '';
            for (const p of data.descriptors) {
                const opt = document.createElement('option');
                opt.value = p; opt.textContent = p;
                sel.appendChild(opt);
            }
        }

        function addDevice() { post('/devices'); }
        function selectDevice(name) { post('/select', {name: name}); }
        function rename() { post('/devices/' + selected().id + '/rename', {name: document.getElementById('f-name').value}); }
        function closeDevice() { post('/devices/' + selected().id + '/close'); }
        function removeDevice() { post('/devices/' + selected().id + '/remove'); }
        function apply() {
            const manual = document.getElementById('f-location-manual').value;
            post('/devices/' + selected().id + '/apply', {
                location: manual || document.getElementById('f-location').value,
                baud_rate: parseInt(document.getElementById('f-baud').value),
                stop_bits: parseInt(document.getElementById('f-stopbits').value),
                encoding: document.getElementById('f-encoding').value,
            });
        }
        function send() {
            const input = document.getElementById('send-text');
            post('/send', {text: input.value});
            input.value = '';
        }
        function copyOutput() { post('/output/copy'); }

        function follow(url, target, render) {
            const el = document.getElementById(target);
            new EventSource(url).onmessage = (event) => {
                const line = document.createElement('div');
                line.textContent = render(JSON.parse(event.data));
                el.appendChild(line);
                el.scrollTop = el.scrollHeight;
            };
        }

        follow('/output/stream', 'output', c => c.text);
        follow('/logs/stream', 'log', m => '[' + m.time + '] ' + m.type + ': ' + m.message);
        refreshStatus();
        refreshPorts();
        setInterval(refreshStatus, 2000);
    </script>
</body>
</html>
`

var indexTemplate = template.Must(template.New("index").Parse(htmlTemplate))

func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := struct {
		BaudRates any
		StopBits  any
		Encodings any
	}{config.STANDARD_BAUDRATES, config.STOPBITS, config.ENCODINGS}
	if err := indexTemplate.Execute(w, data); err != nil {
		s.logger.Error("render index", "error", err)
	}
}
