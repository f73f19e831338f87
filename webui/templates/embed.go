package templates

import (
	"embed"
	"errors"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/chrisdd2/federated-login/model"
)

const layoutFile = "layout.html"

var (
	//go:embed *.html
	embeddedFiles       embed.FS
	templates           map[string]*template.Template
	ErrTemplateNotExist error = errors.New("template doesn't exist")
)

func init() {
	templates = map[string]*template.Template{}
	files, err := fs.Glob(embeddedFiles, "*.html")
	if err != nil {
		panic(err.Error())
	}
	for _, file := range files {
		if file == layoutFile {
			continue
		}
		t := template.Must(template.ParseFS(embeddedFiles, layoutFile))
		templates[file] = template.Must(t.ParseFS(embeddedFiles, file))
	}
}

func RenderPage(w http.ResponseWriter, name string, data any) error {
	tmpl, ok := templates[name]
	if !ok {
		return ErrTemplateNotExist
	}
	w.Header().Add("Content-Type", "text/html; charset=utf-8")
	return tmpl.ExecuteTemplate(w, name, data)
}

type ProviderLink struct {
	Label string
	Path  string
}

type PageData struct {
	Title      string
	Name       string
	Version    string
	LoginPath  string
	LogoutPath string
	Logged     bool
	User       *model.UserProfile
	Providers  []ProviderLink
}

func TemplateData(user *model.UserProfile, title string, name string, version string) *PageData {
	return &PageData{
		Title:      title,
		Name:       name,
		Version:    version,
		LoginPath:  "/login",
		LogoutPath: "/logout",
		Logged:     user != nil,
		User:       user,
	}
}
