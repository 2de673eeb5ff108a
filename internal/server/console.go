package server

import "net/http"

// consoleHTML is the device console page. It polls /api/receive with the last
// seen message id as cursor and posts messages through /api/send.
const consoleHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>VEX USB Interface</title>
<style>
body { font-family: monospace; margin: 2em; background: #111; color: #ddd; }
#log { border: 1px solid #444; height: 20em; overflow-y: scroll; padding: 0.5em; }
#status { margin-bottom: 1em; }
.ts { color: #888; margin-right: 0.5em; }
input[type=text] { width: 70%; background: #222; color: #ddd; border: 1px solid #444; }
</style>
</head>
<body>
<h1>VEX USB Interface</h1>
<div id="status">USB: <span id="usb">?</span> <span id="port"></span></div>
<div id="log"></div>
<form id="f"><input type="text" id="msg" autocomplete="off"><button>Send</button></form>
<script>
let lastId = 0;
async function poll() {
  try {
    const r = await fetch('/api/receive?last_id=' + lastId);
    const d = await r.json();
    document.getElementById('usb').textContent = d.usb_connected ? 'connected' : 'disconnected';
    document.getElementById('port').textContent = d.usb_port;
    const log = document.getElementById('log');
    for (const m of d.messages) {
      lastId = m.id;
      const div = document.createElement('div');
      div.innerHTML = '<span class="ts">' + m.timestamp + '</span>';
      div.appendChild(document.createTextNode(m.text));
      log.appendChild(div);
    }
    if (d.messages.length) log.scrollTop = log.scrollHeight;
  } catch (e) {}
  setTimeout(poll, 500);
}
document.getElementById('f').addEventListener('submit', async (ev) => {
  ev.preventDefault();
  const input = document.getElementById('msg');
  await fetch('/api/send', {
    method: 'POST',
    headers: {'Content-Type': 'application/json'},
    body: JSON.stringify({message: input.value})
  });
  input.value = '';
});
poll();
</script>
</body>
</html>
`

func (s *Server) handleConsole(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(consoleHTML))
}
