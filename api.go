package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof" // register handlers
	"regexp"
	"strconv"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kappatan/kappatan/store"
	"github.com/kappatan/kappatan/twitch"
)

func (robo *Bot) api(ctx context.Context, listen string, mux *http.ServeMux, metrics []prometheus.Collector) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(
		collectors.WithGoCollectorMemStatsMetricsDisabled(),
		collectors.WithGoCollectorRuntimeMetrics(
			collectors.GoRuntimeMetricsRule{
				Matcher: regexp.MustCompile(`^(/gc/gogc:percent|/gc/gomemlimit:bytes|/gc/heap/allocs:bytes|/gc/heap/allocs:objects|/gc/heap/goal:bytes|/memory/classes/heap/released:bytes|/memory/classes/heap/stacks:bytes|/memory/classes/total:bytes|/sched/gomaxprocs:threads|/sched/goroutines:goroutines|/sched/latencies:seconds)$`),
			},
		),
	))
	reg.MustRegister(metrics...)
	opts := promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, opts))
	mux.HandleFunc("GET /debug/pprof/", pprof.Index)
	mux.HandleFunc("GET /debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("GET /debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("GET /debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("GET /debug/pprof/trace", pprof.Trace)
	mux.HandleFunc("GET /api/templates/{channel}", robo.apiListTemplates)
	mux.HandleFunc("GET /api/templates/{channel}/{name}", robo.apiGetTemplate)
	mux.HandleFunc("POST /api/templates/{channel}/{name}", robo.apiSetTemplate)
	mux.HandleFunc("DELETE /api/templates/{channel}/{name}", robo.apiUnsetTemplate)
	mux.HandleFunc("GET /api/points/{channel}/{user}", robo.apiPoints)
	l, err := net.Listen("tcp", listen)
	if err != nil {
		return fmt.Errorf("couldn't start API server: %w", err)
	}
	srv := http.Server{
		Handler:     mux,
		ReadTimeout: 5 * time.Second,
		BaseContext: func(l net.Listener) context.Context { return ctx },
	}
	go func() {
		slog.InfoContext(ctx, "HTTP API server", slog.Any("addr", l.Addr()))
		err := srv.Serve(l)
		if err == http.ErrServerClosed {
			return
		}
		slog.ErrorContext(ctx, "HTTP API server closed", slog.Any("err", err))
	}()
	<-ctx.Done()
	// The context is now done, so it is obviously the wrong choice for
	// managing the shutdown.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func jsonerror(w http.ResponseWriter, status int, msg string) {
	v := struct {
		Error  string `json:"error"`
		Status int    `json:"status"`
	}{
		Error:  msg,
		Status: status,
	}
	b, err := json.Marshal(&v)
	if err != nil {
		panic(err)
	}
	w.WriteHeader(status)
	w.Write(b)
}

type apiTemplate struct {
	Name     string `json:"name"`
	Template string `json:"template,omitzero"`
}

func (robo *Bot) apiListTemplates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slog.With(slog.String("api", "templates"), slog.Any("trace", uuid.New()))
	log.InfoContext(ctx, "handle", slog.String("route", r.Pattern), slog.String("remote", r.RemoteAddr))
	defer log.InfoContext(ctx, "done")
	w.Header().Set("Content-Type", "application/json")
	channel := r.PathValue("channel")
	names, err := robo.store.ListTemplates(ctx, channel)
	if err != nil {
		log.ErrorContext(ctx, "couldn't list templates", slog.Any("err", err))
		jsonerror(w, http.StatusInternalServerError, err.Error())
		return
	}
	u := struct {
		Data   []apiTemplate `json:"data"`
		Status int           `json:"status"`
	}{
		Data:   make([]apiTemplate, len(names)),
		Status: http.StatusOK,
	}
	for i, nm := range names {
		u.Data[i] = apiTemplate{Name: nm}
	}
	b, err := json.Marshal(&u)
	if err != nil {
		panic(err)
	}
	if _, err := w.Write(b); err != nil {
		log.ErrorContext(ctx, "write response failed", slog.Any("err", err))
	}
}

func (robo *Bot) apiGetTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slog.With(slog.String("api", "templates"), slog.Any("trace", uuid.New()))
	log.InfoContext(ctx, "handle", slog.String("route", r.Pattern), slog.String("remote", r.RemoteAddr))
	defer log.InfoContext(ctx, "done")
	w.Header().Set("Content-Type", "application/json")
	channel, name := r.PathValue("channel"), r.PathValue("name")
	body, err := robo.store.GetTemplate(ctx, channel, name)
	switch {
	case err == nil: // do nothing
	case errors.Is(err, store.ErrNotFound):
		jsonerror(w, http.StatusNotFound, "no such template")
		return
	default:
		log.ErrorContext(ctx, "couldn't get template", slog.Any("err", err))
		jsonerror(w, http.StatusInternalServerError, err.Error())
		return
	}
	u := struct {
		Data   apiTemplate `json:"data"`
		Status int         `json:"status"`
	}{
		Data:   apiTemplate{Name: name, Template: body},
		Status: http.StatusOK,
	}
	b, err := json.Marshal(&u)
	if err != nil {
		panic(err)
	}
	if _, err := w.Write(b); err != nil {
		log.ErrorContext(ctx, "write response failed", slog.Any("err", err))
	}
}

func (robo *Bot) apiSetTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slog.With(slog.String("api", "templates"), slog.Any("trace", uuid.New()))
	log.InfoContext(ctx, "handle", slog.String("route", r.Pattern), slog.String("remote", r.RemoteAddr))
	defer log.InfoContext(ctx, "done")
	channel, name := r.PathValue("channel"), r.PathValue("name")
	d := jsontext.NewDecoder(r.Body)
	var v apiTemplate
	if err := json.UnmarshalDecode(d, &v); err != nil {
		log.ErrorContext(ctx, "read template", slog.Any("err", err))
		jsonerror(w, http.StatusBadRequest, "template read failed")
		return
	}
	if v.Template == "" {
		jsonerror(w, http.StatusBadRequest, "empty template")
		return
	}
	if err := robo.store.UpsertTemplate(ctx, channel, name, v.Template); err != nil {
		log.ErrorContext(ctx, "set failed", slog.String("channel", channel), slog.String("name", name), slog.Any("err", err))
		jsonerror(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (robo *Bot) apiUnsetTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slog.With(slog.String("api", "templates"), slog.Any("trace", uuid.New()))
	log.InfoContext(ctx, "handle", slog.String("route", r.Pattern), slog.String("remote", r.RemoteAddr))
	defer log.InfoContext(ctx, "done")
	channel, name := r.PathValue("channel"), r.PathValue("name")
	err := robo.store.DeleteTemplate(ctx, channel, name)
	switch {
	case err == nil: // do nothing
	case errors.Is(err, store.ErrNotFound):
		jsonerror(w, http.StatusNotFound, "no such template")
		return
	default:
		log.ErrorContext(ctx, "unset failed", slog.String("channel", channel), slog.String("name", name), slog.Any("err", err))
		jsonerror(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (robo *Bot) apiPoints(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slog.With(slog.String("api", "points"), slog.Any("trace", uuid.New()))
	log.InfoContext(ctx, "handle", slog.String("route", r.Pattern), slog.String("remote", r.RemoteAddr))
	defer log.InfoContext(ctx, "done")
	w.Header().Set("Content-Type", "application/json")
	channel, user := r.PathValue("channel"), r.PathValue("user")
	id, err := strconv.ParseInt(user, 10, 64)
	if err != nil {
		// Not a user ID. Try it as a login name.
		id, err = robo.resolveUser(ctx, user)
		if err != nil {
			log.WarnContext(ctx, "couldn't resolve user", slog.String("user", user), slog.Any("err", err))
			jsonerror(w, http.StatusBadRequest, "unknown user")
			return
		}
	}
	pts, err := robo.store.GetPoints(ctx, channel, id)
	switch {
	case err == nil: // do nothing
	case errors.Is(err, store.ErrNotFound):
		pts = 0
	default:
		log.ErrorContext(ctx, "couldn't get points", slog.Any("err", err))
		jsonerror(w, http.StatusInternalServerError, err.Error())
		return
	}
	u := struct {
		User   int64 `json:"user,string"`
		Points int64 `json:"points"`
		Status int   `json:"status"`
	}{
		User:   id,
		Points: pts,
		Status: http.StatusOK,
	}
	b, err := json.Marshal(&u)
	if err != nil {
		panic(err)
	}
	if _, err := w.Write(b); err != nil {
		log.ErrorContext(ctx, "write response failed", slog.Any("err", err))
	}
}

// resolveUser resolves a Twitch login name to a user ID.
func (robo *Bot) resolveUser(ctx context.Context, login string) (int64, error) {
	if robo.helix == nil {
		return 0, fmt.Errorf("no Helix token source")
	}
	tok, err := robo.helix.Token(ctx)
	if err != nil {
		return 0, fmt.Errorf("couldn't obtain Helix token: %w", err)
	}
	us, err := twitch.Users(ctx, robo.twitch, tok, []twitch.User{{Login: login}})
	if err != nil {
		return 0, err
	}
	if len(us) == 0 {
		return 0, fmt.Errorf("no user named %s", login)
	}
	return strconv.ParseInt(us[0].ID, 10, 64)
}
