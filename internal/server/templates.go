package server

import "html/template"

var authorizeFormTemplate = template.Must(template.New("authorize").Parse(`<!DOCTYPE html>
<html lang="pt-BR">
<head>
  <meta charset="UTF-8" />
  <title>Gov.br (simulado)</title>
</head>
<body>
  <h2>Login bem-sucedido via GOV.BR (simulado)</h2>
  <p>Usuário autenticado com sucesso.</p>
  <p><b>Código gerado:</b> {{.Code}}</p>
  <form id="continue" action="{{.RedirectURI}}" method="get">
    <input type="hidden" name="code" value="{{.Code}}">
    {{- if .State}}
    <input type="hidden" name="state" value="{{.State}}">
    {{- end}}
    <button type="submit">Continuar para Tableau</button>
  </form>
  <script>document.getElementById("continue").submit();</script>
</body>
</html>
`))

var loginPageTemplate = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html lang="pt-BR">
<head>
  <meta charset="UTF-8" />
  <title>Entrar com gov.br</title>
  <style>
    body { font-family: Arial, sans-serif; background:#f8f8f8; display:flex; align-items:center; justify-content:center; height:100vh; margin:0; }
    .card { background:#fff; border-top:4px solid #1351b4; padding:32px; border-radius:8px; width:360px; box-shadow:0 2px 8px rgba(0,0,0,.1); }
    h1 { color:#1351b4; font-size:22px; margin:0 0 16px; }
    label { display:block; margin:12px 0 4px; font-size:14px; }
    input[type=text], input[type=password] { width:100%; padding:8px; box-sizing:border-box; }
    button { margin-top:20px; width:100%; padding:10px; background:#1351b4; color:#fff; border:0; border-radius:20px; font-size:15px; }
  </style>
</head>
<body>
  <div class="card">
    <h1>gov.br (simulado)</h1>
    <form action="{{.Action}}" method="post">
      <label for="username">CPF ou usuário</label>
      <input type="text" id="username" name="username" required autofocus>
      <label for="password">Senha</label>
      <input type="password" id="password" name="password">
      <input type="hidden" name="client_id" value="{{.ClientID}}">
      <input type="hidden" name="redirect_uri" value="{{.RedirectURI}}">
      <input type="hidden" name="state" value="{{.State}}">
      <button type="submit">Entrar</button>
    </form>
  </div>
</body>
</html>
`))

type authorizeFormData struct {
	Code        string
	State       string
	RedirectURI string
}

type loginPageData struct {
	Action      string
	ClientID    string
	RedirectURI string
	State       string
}
