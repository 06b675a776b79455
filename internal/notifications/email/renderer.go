package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	texttemplate "text/template"

	"telloo/internal/types"
)

//go:embed templates/*.html templates/*.txt
var templateFS embed.FS

// RenderedEmail holds the pre-rendered email content ready for transmission.
type RenderedEmail struct {
	Subject  string
	BodyHTML string
	BodyText string
}

// descriptionLimit is the maximum number of characters of post description
// shown in new_post emails before truncation.
const descriptionLimit = 200

// RenderInput carries the event context needed to render one recipient's
// email.
type RenderInput struct {
	Post  *types.Post
	Event types.DispatchEvent
	// IsAuthor selects the author phrasing for new_comment emails.
	IsAuthor bool
}

// templateData is the struct passed into Go templates for rendering.
// User-supplied fields (PostTitle, Description, CommentContent) are escaped
// by html/template on interpolation.
type templateData struct {
	Subject        string
	BoardTitle     string
	PostTitle      string
	Description    string
	CommentContent string
	StatusLabel    string
	PostURL        string
	PrefsURL       string
	IsAuthor       bool
	ReasonLine     string
}

// Renderer performs email template rendering using Go's html/template with
// embedded template files. Each event type has a content template layered
// over the shared base layout, plus a plaintext counterpart.
type Renderer struct {
	htmlTemplates map[types.EventType]*template.Template
	textTemplates map[types.EventType]*texttemplate.Template

	appURL   string
	fromAddr string
	fromName string
	logger   types.Logger
}

// RendererConfig holds the parameters needed to construct a Renderer.
type RendererConfig struct {
	// AppURL is the public site URL used to build post links (no trailing slash).
	AppURL   string
	FromAddr string
	FromName string
	Logger   types.Logger
}

// NewRenderer parses the embedded templates and returns a Renderer.
// Returns an error if any template fails to parse.
func NewRenderer(cfg RendererConfig) (*Renderer, error) {
	r := &Renderer{
		htmlTemplates: make(map[types.EventType]*template.Template),
		textTemplates: make(map[types.EventType]*texttemplate.Template),
		appURL:        strings.TrimSuffix(cfg.AppURL, "/"),
		fromAddr:      cfg.FromAddr,
		fromName:      cfg.FromName,
		logger:        cfg.Logger,
	}

	baseHTML, err := templateFS.ReadFile("templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("renderer: failed to read base.html: %w", err)
	}

	for _, et := range types.KnownEventTypes {
		name := string(et)

		// Parse HTML: base layout + event-specific content block.
		htmlContent, err := templateFS.ReadFile(fmt.Sprintf("templates/%s.html", name))
		if err != nil {
			return nil, fmt.Errorf("renderer: failed to read %s.html: %w", name, err)
		}
		htmlTmpl, err := template.New("base").Parse(string(baseHTML))
		if err != nil {
			return nil, fmt.Errorf("renderer: failed to parse base.html: %w", err)
		}
		if _, err := htmlTmpl.Parse(string(htmlContent)); err != nil {
			return nil, fmt.Errorf("renderer: failed to parse %s.html: %w", name, err)
		}
		r.htmlTemplates[et] = htmlTmpl

		// Parse plaintext template.
		txtContent, err := templateFS.ReadFile(fmt.Sprintf("templates/%s.txt", name))
		if err != nil {
			return nil, fmt.Errorf("renderer: failed to read %s.txt: %w", name, err)
		}
		txtTmpl, err := texttemplate.New(name).Parse(string(txtContent))
		if err != nil {
			return nil, fmt.Errorf("renderer: failed to parse %s.txt: %w", name, err)
		}
		r.textTemplates[et] = txtTmpl
	}

	return r, nil
}

// Render renders the event into a RenderedEmail (Subject, BodyHTML,
// BodyText) and returns the SenderIdentity to send it from.
func (r *Renderer) Render(in RenderInput) (*RenderedEmail, types.SenderIdentity, error) {
	if in.Post == nil {
		return nil, types.SenderIdentity{}, types.NewAppError(
			types.ErrCodeTemplateRender, "renderer: post is nil", nil)
	}

	et := in.Event.Type
	htmlTmpl, ok := r.htmlTemplates[et]
	if !ok {
		return nil, types.SenderIdentity{}, types.NewAppError(
			types.ErrCodeTemplateRender,
			fmt.Sprintf("renderer: no HTML template for event type %q", et), nil)
	}
	txtTmpl, ok := r.textTemplates[et]
	if !ok {
		return nil, types.SenderIdentity{}, types.NewAppError(
			types.ErrCodeTemplateRender,
			fmt.Sprintf("renderer: no text template for event type %q", et), nil)
	}

	data := r.buildTemplateData(in)

	var htmlBuf bytes.Buffer
	if err := htmlTmpl.Execute(&htmlBuf, data); err != nil {
		return nil, types.SenderIdentity{}, types.NewAppError(
			types.ErrCodeTemplateRender,
			fmt.Sprintf("renderer: failed to render HTML for %q", et), err)
	}

	var txtBuf bytes.Buffer
	if err := txtTmpl.Execute(&txtBuf, data); err != nil {
		return nil, types.SenderIdentity{}, types.NewAppError(
			types.ErrCodeTemplateRender,
			fmt.Sprintf("renderer: failed to render text for %q", et), err)
	}

	sender := types.SenderIdentity{
		Address: r.fromAddr,
		Name:    r.fromName,
	}

	return &RenderedEmail{
		Subject:  data.Subject,
		BodyHTML: htmlBuf.String(),
		BodyText: txtBuf.String(),
	}, sender, nil
}

// buildTemplateData assembles the typed struct handed to the templates.
func (r *Renderer) buildTemplateData(in RenderInput) templateData {
	post := in.Post
	statusLabel := strings.ToUpper(strings.ReplaceAll(in.Event.NewStatus, "_", " "))

	data := templateData{
		BoardTitle:     post.Board.Title,
		PostTitle:      post.Title,
		Description:    truncate(post.Description, descriptionLimit),
		CommentContent: in.Event.CommentContent,
		StatusLabel:    statusLabel,
		PostURL:        fmt.Sprintf("%s/%s?post=%s", r.appURL, post.Board.Slug, post.ID),
		PrefsURL:       r.appURL + "/s/dashboard",
		IsAuthor:       in.IsAuthor,
	}

	switch in.Event.Type {
	case types.EventNewComment:
		data.Subject = fmt.Sprintf("New comment on %q", post.Title)
		if in.IsAuthor {
			data.ReasonLine = fmt.Sprintf("You're receiving this because you posted on %s.", post.Board.Title)
		} else {
			data.ReasonLine = fmt.Sprintf("You're receiving this because you commented on this post on %s.", post.Board.Title)
		}
	case types.EventStatusChange:
		data.Subject = fmt.Sprintf("Status update: %q is now %s", post.Title, strings.ReplaceAll(in.Event.NewStatus, "_", " "))
		data.ReasonLine = fmt.Sprintf("You're receiving this because you posted on %s.", post.Board.Title)
	case types.EventNewPost:
		data.Subject = fmt.Sprintf("New post on %s: %q", post.Board.Title, post.Title)
		data.ReasonLine = fmt.Sprintf("You're receiving this because you manage %s.", post.Board.Title)
	case types.EventNewVote:
		data.Subject = fmt.Sprintf("New vote on %q", post.Title)
		data.ReasonLine = fmt.Sprintf("You're receiving this because you posted on %s.", post.Board.Title)
	}

	return data
}

// truncate shortens s to at most limit characters, appending an ellipsis
// when anything was cut. Limits are counted in runes so multi-byte text is
// never split mid-character.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "…"
}
