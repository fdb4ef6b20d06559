package main

// viewerHTML is the built-in client bundle served at / when no
// -payload file is given. It polls /state once, then follows websocket
// updates.
const viewerHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>gdlive</title>
<style>
body { margin: 0; font-family: sans-serif; background: #333; }
#bar { color: #eee; padding: 6px 10px; }
#plot { display: block; margin: 10px auto; background: #fff; box-shadow: 0 0 12px #000; }
</style>
</head>
<body>
<div id="bar">page <span id="page">1</span> / <span id="count">0</span> &mdash; upid <span id="upid">0</span></div>
<img id="plot">
<script>
(function () {
  var token = new URLSearchParams(location.search).get("token") || "";
  var page = 1;
  function q(path) { return path + (token ? (path.indexOf("?") < 0 ? "?" : "&") + "token=" + token : ""); }
  function refresh(upid) {
    var img = document.getElementById("plot");
    var w = Math.floor(window.innerWidth * 0.9);
    var h = Math.floor(window.innerHeight * 0.85);
    img.src = q("/plot?page=" + page + "&width=" + w + "&height=" + h) + "&upid=" + upid;
    document.getElementById("page").textContent = page;
    document.getElementById("upid").textContent = upid;
  }
  fetch(q("/state")).then(function (r) { return r.json(); }).then(function (st) {
    document.getElementById("count").textContent = st.page_count;
    page = Math.max(st.page_count, 1);
    refresh(st.upid);
  });
  var ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + q("/ws"));
  ws.onmessage = function (ev) {
    var msg = JSON.parse(ev.data);
    if (msg.type === "reload") { location.reload(); return; }
    fetch(q("/state")).then(function (r) { return r.json(); }).then(function (st) {
      document.getElementById("count").textContent = st.page_count;
      page = Math.max(st.page_count, 1);
      refresh(st.upid);
    });
  };
})();
</script>
</body>
</html>
`
