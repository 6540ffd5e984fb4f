package web

import (
	"bytes"
	"context"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"

	"ForceView/internal/backend"
	"ForceView/internal/export"
	"ForceView/internal/filter"
	"ForceView/internal/repo"
	"ForceView/internal/run"
	"ForceView/internal/table"
	"ForceView/internal/theme"
)

type navLink struct {
	Href   string
	Label  string
	Active bool
}

var navLinks = []navLink{
	{Href: "/", Label: "Home"},
	{Href: "/nodes", Label: "Nodes"},
	{Href: "/spcs", Label: "SPCs"},
	{Href: "/spcclusters", Label: "SPC Clusters"},
	{Href: "/mpcs", Label: "MPCs"},
}

// Nav marks the link whose href equals path as active.
func Nav(path string) []navLink {
	out := make([]navLink, len(navLinks))
	for i, l := range navLinks {
		l.Active = l.Href == path
		out[i] = l
	}
	return out
}

type basePage struct {
	Title       string
	Nav         []navLink
	Theme       theme.Theme
	Banner      string
	AuthEnabled bool
	LoggedIn    bool
}

func (s *Server) base(r *http.Request, title string, banner *backend.Banner) basePage {
	p := basePage{
		Title:       title,
		Nav:         Nav(r.URL.Path),
		Theme:       theme.FromRequest(r),
		AuthEnabled: s.auth.Enabled(),
		LoggedIn:    s.auth.LoggedIn(r),
	}
	if banner != nil {
		p.Banner = banner.Message()
	}
	return p
}

func parsePages() map[string]*template.Template {
	funcs := template.FuncMap{
		"humanTime": func(t time.Time) string { return humanize.Time(t) },
	}
	pages := map[string]*template.Template{}
	for _, name := range []string{"dashboard", "table", "login"} {
		pages[name] = template.Must(template.New("layout.html").Funcs(funcs).
			ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html"))
	}
	return pages
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	var buf bytes.Buffer
	if err := s.pages[name].Execute(&buf, data); err != nil {
		s.logger.Error().Err(err).Str("page", name).Msg("render page")
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

// withBanner attaches a fresh banner to the request context.
func withBanner(r *http.Request) (context.Context, *backend.Banner) {
	b := &backend.Banner{}
	return backend.WithReporter(r.Context(), b), b
}

func atoi(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

// StateFromQuery restores a table state from page, sort, dir, filter and subcase.
func StateFromQuery(q url.Values) table.State {
	st := table.State{
		Page:      atoi(q.Get("page"), 1),
		Sort:      table.Sort{Column: q.Get("sort"), Direction: table.Ascending},
		Filter:    filter.ParseIDs(q.Get("filter")),
		SubcaseID: atoi(q.Get("subcase"), 0),
	}
	if q.Get("dir") == "desc" {
		st.Sort.Direction = table.Descending
	}
	return st
}

func StateQuery(st table.State) url.Values {
	v := url.Values{}
	v.Set("page", strconv.Itoa(st.Page))
	v.Set("sort", st.Sort.Column)
	if st.Sort.Direction == table.Descending {
		v.Set("dir", "desc")
	} else {
		v.Set("dir", "asc")
	}
	if st.Filtered() {
		v.Set("filter", st.FilterText())
	}
	if st.SubcaseID != 0 {
		v.Set("subcase", strconv.Itoa(st.SubcaseID))
	}
	return v
}

func stateURL(path string, st table.State) string {
	return path + "?" + StateQuery(st).Encode()
}

type header struct {
	Label    string
	Sortable bool
	Icon     string
	URL      string
}

type tablePage struct {
	basePage
	View       table.View
	Failed     bool
	Headers    []header
	Path       string
	PrevURL    string
	NextURL    string
	ResetURL   string
	RefreshURL string
	XLSXURL    string
	PDFURL     string
	Dir        string
}

func (s *Server) loadTable(ctx context.Context, name string, q url.Values) (table.View, error) {
	t := s.tables[name]()
	if q.Get("refresh") == "1" {
		s.subcases.Get(ctx, true)
		s.clusters.Invalidate()
		s.mpcs.Invalidate()
	}
	t.Restore(StateFromQuery(q))
	return t.Refresh(ctx)
}

func (s *Server) tablePage(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["entity"]
	ctx, banner := withBanner(r)
	v, err := s.loadTable(ctx, name, r.URL.Query())
	if err != nil {
		s.logger.Warn().Err(err).Str("table", name).Msg("load table")
	}

	path := "/" + name
	st := v.State
	p := tablePage{
		basePage: s.base(r, v.Title, banner),
		View:     v,
		Failed:   err != nil,
		Path:     path,
		Dir:      "asc",
	}
	if st.Sort.Direction == table.Descending {
		p.Dir = "desc"
	}
	for _, c := range v.Columns {
		h := header{Label: c.Label, Sortable: c.Sortable}
		if c.Sortable {
			next := st
			next.ToggleSort(c.Key)
			h.Icon = st.Sort.Icon(c.Key)
			h.URL = stateURL(path, next)
		}
		p.Headers = append(p.Headers, h)
	}
	if prev := st; prev.Prev() {
		p.PrevURL = stateURL(path, prev)
	}
	if next := st; next.Next() {
		p.NextURL = stateURL(path, next)
	}
	reset := st
	reset.ResetFilter()
	p.ResetURL = stateURL(path, reset)
	refresh := StateQuery(st)
	refresh.Set("refresh", "1")
	p.RefreshURL = path + "?" + refresh.Encode()
	p.XLSXURL = path + "/export.xlsx?" + StateQuery(st).Encode()
	p.PDFURL = path + "/export.pdf?" + StateQuery(st).Encode()
	if p.Title == "" {
		p.Title = name
	}
	s.render(w, "table", p)
}

func (s *Server) exportTable(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	name, format := vars["entity"], vars["format"]
	ctx, banner := withBanner(r)
	v, err := s.loadTable(ctx, name, r.URL.Query())
	if err != nil {
		msg := banner.Message()
		if msg == "" {
			msg = "Export failed"
		}
		http.Error(w, msg, http.StatusBadGateway)
		return
	}

	var buf bytes.Buffer
	filename := name + "-page" + strconv.Itoa(v.State.Page) + "." + format
	switch format {
	case "xlsx":
		err = export.XLSX(&buf, v)
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	case "pdf":
		err = export.PDF(&buf, v)
		w.Header().Set("Content-Type", "application/pdf")
	}
	if err != nil {
		s.logger.Error().Err(err).Str("format", format).Msg("export table")
		http.Error(w, "Export generation error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	buf.WriteTo(w)
}

// filterFromFile reads ids from an uploaded workbook and redirects to the filtered table.
func (s *Server) filterFromFile(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["entity"]
	r.Body = http.MaxBytesReader(w, r.Body, 32<<20)
	file, _, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "File required", http.StatusBadRequest)
		return
	}
	defer file.Close()
	ids, err := export.ReadIDs(file)
	if err != nil {
		http.Error(w, "Invalid file", http.StatusBadRequest)
		return
	}
	st := StateFromQuery(r.URL.Query())
	st.Filter = ids
	st.Page = 1
	http.Redirect(w, r, stateURL("/"+name, st), http.StatusSeeOther)
}

type dashboardPage struct {
	basePage
	OutputFolder string
	Progress     run.Snapshot
	Runs         []repo.RunRecord
}

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	ctx, banner := withBanner(r)
	p := dashboardPage{Progress: s.tracker.Snapshot()}
	if folder, err := s.backend.OutputFolder(ctx); err == nil {
		p.OutputFolder = folder
	}
	if s.history != nil {
		runs, err := s.history.RecentRuns(ctx, 10)
		if err != nil {
			s.logger.Warn().Err(err).Msg("load run history")
			banner.Report("Error loading run history.")
		}
		p.Runs = runs
	}
	p.basePage = s.base(r, "ForceView", banner)
	s.render(w, "dashboard", p)
}

type loginPage struct {
	basePage
	Error bool
}

func (s *Server) loginPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, "login", loginPage{basePage: s.base(r, "Login", nil), Error: r.URL.Query().Get("error") != ""})
}

func (s *Server) toggleTheme(w http.ResponseWriter, r *http.Request) {
	theme.Set(w, theme.FromRequest(r).Toggle())
	back := "/"
	if ref, err := url.Parse(r.Referer()); err == nil && ref.Path != "" && ref.Host == r.Host {
		back = ref.RequestURI()
	}
	http.Redirect(w, r, back, http.StatusSeeOther)
}
