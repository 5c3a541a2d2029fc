package api

// docsHTML renders the OpenAPI description with Stoplight Elements. The
// event stream and the command socket are not OpenAPI operations, so they
// are listed in the header.
const docsHTML = `<!doctype html>
<html lang="en" data-theme="dark">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>chartmark API</title>
  <link href="https://unpkg.com/@stoplight/elements@9.0.0/styles.min.css" rel="stylesheet" />
  <script src="https://unpkg.com/@stoplight/elements@9.0.0/web-components.min.js" crossorigin="anonymous"></script>
  <style>
    body { display: flex; flex-direction: column; height: 100vh; margin: 0; background: #0b0e14; color: #d1d5db; font-family: system-ui, sans-serif; }
    header { padding: 10px 18px; border-bottom: 1px solid #1f2937; font-size: 13px; }
    header h1 { display: inline; font-size: 15px; margin-right: 16px; color: #10b981; }
    header code { color: #3b82f6; }
    elements-api { flex: 1; min-height: 0; }
  </style>
</head>
<body>
  <header>
    <h1>chartmark API</h1>
    <span>Live exports: <code>GET /api/v1/canvases/{canvas_id}/events</code> (server-sent events, <code>?kinds=export,analysis</code>)</span>
    &middot;
    <span>Gestures: <code>GET /api/v1/canvases/{canvas_id}/stream</code> (WebSocket, one JSON command per text frame, one ack per command)</span>
  </header>
  <elements-api
    apiDescriptionUrl="/openapi.json"
    router="hash"
    layout="sidebar"
    hideSchemas
    darkMode
  />
</body>
</html>`
