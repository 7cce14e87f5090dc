// Package main is the hoidap CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/hyperjump/hoidap/internal/chat"
	"github.com/hyperjump/hoidap/internal/cli"
	"github.com/hyperjump/hoidap/internal/config"
	"github.com/hyperjump/hoidap/internal/embedding"
	"github.com/hyperjump/hoidap/internal/storage"
	"github.com/hyperjump/hoidap/internal/vectorstore"
	"github.com/hyperjump/hoidap/internal/watcher"
	"github.com/hyperjump/hoidap/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigFile = "config.yaml"

var documentExtensions = []string{".pdf", ".docx", ".xlsx"}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout))
}

// run executes the command in args and returns the process exit code.
func run(args []string, stdin io.Reader, stdout io.Writer) int {
	command := "chat"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command, args = args[0], args[1:]
	}
	switch command {
	case "chat":
		return runChat(args, stdin, stdout)
	case "build":
		return runBuild(args, stdout)
	case "ask":
		return runAsk(args, stdout)
	case "status":
		return runStatus(args, stdout)
	case "watch":
		return runWatch(args, stdout)
	case "init":
		return runInit(args, stdout)
	case "version", "--version", "-v":
		fmt.Fprintf(stdout, "hoidap version %s\n", version)
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stdout, "Lệnh không hợp lệ: %s\n", command)
		printUsage(stdout)
		return 1
	}
}

// env is what every command needs after flag parsing.
type env struct {
	cfg    *config.Config
	logger *zap.Logger
	out    io.Writer
}

func (e *env) close() {
	_ = e.logger.Sync()
}

// commonFlags registers -config and -debug on fs.
func commonFlags(fs *flag.FlagSet) (configPath *string, debug *bool) {
	configPath = fs.String("config", "", "config file path (default: ./config.yaml when present, else built-in defaults)")
	debug = fs.Bool("debug", false, "enable debug logging")
	return configPath, debug
}

// loadConfig loads config from path. With no path it uses config.yaml in the
// current directory if there is one, otherwise the built-in defaults.
// Variables from ./.env are applied first.
func loadConfig(path string) (*config.Config, error) {
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, err
	}
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			return config.Load(defaultConfigFile)
		}
		return config.Default()
	}
	return config.Load(path)
}

func setup(configPath string, debug bool, out io.Writer) (*env, bool) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(out, "Không thể đọc cấu hình: %v\n", err)
		return nil, false
	}
	logger, err := utils.NewLogger(cfg.Debug || debug)
	if err != nil {
		fmt.Fprintf(out, "Không thể khởi tạo logger: %v\n", err)
		return nil, false
	}
	logger.Debug("config loaded",
		zap.String("documents_dir", cfg.Paths.DocumentsDir),
		zap.String("vector_db_dir", cfg.Paths.VectorDBDir),
		zap.String("embedding", cfg.Embedding.Provider+"/"+cfg.Embedding.Model),
		zap.String("llm", cfg.LLM.Provider+"/"+cfg.LLM.Model))
	return &env{cfg: cfg, logger: logger, out: out}, true
}

// reportError prints the operator message for err and returns exit code 1.
func (e *env) reportError(err error) int {
	dir := e.cfg.Paths.VectorDBDir
	switch {
	case errors.Is(err, vectorstore.ErrNoDocuments), errors.Is(err, vectorstore.ErrNoChunks):
		fmt.Fprintf(e.out, "Không tìm thấy tài liệu nào trong thư mục %s.\n", e.cfg.Paths.DocumentsDir)
	case errors.Is(err, vectorstore.ErrStoreMissing), errors.Is(err, vectorstore.ErrStoreCorrupt):
		fmt.Fprintf(e.out, "Cơ sở dữ liệu vector bị hỏng hoặc thiếu tệp %s. Vui lòng xoá thư mục %s và chạy lại.\n", vectorstore.MarkerFile, dir)
	case errors.Is(err, vectorstore.ErrModelMismatch):
		fmt.Fprintf(e.out, "Cơ sở dữ liệu vector trong %s được tạo bằng mô hình embedding khác. Hãy chạy 'hoidap build' để tạo lại.\n", dir)
	case errors.Is(err, chat.ErrLLMUnavailable):
		fmt.Fprintf(e.out, "Không thể kết nối tới mô hình ngôn ngữ %s. Hãy đảm bảo máy chủ LLM đang chạy và mô hình đã được tải về.\n", e.cfg.LLM.Model)
	case errors.Is(err, embedding.ErrEmbeddingModel), errors.Is(err, vectorstore.ErrEmbedding):
		fmt.Fprintf(e.out, "Không thể tạo embedding bằng mô hình %s. Hãy kiểm tra máy chủ embedding.\n", e.cfg.Embedding.Model)
	case errors.Is(err, vectorstore.ErrPersist):
		fmt.Fprintf(e.out, "Không thể lưu cơ sở dữ liệu vector vào %s.\n", dir)
	case errors.Is(err, vectorstore.ErrStoreOpen):
		fmt.Fprintf(e.out, "Không thể mở chỉ mục vector (%s).\n", e.cfg.Vector.IndexType)
	default:
		fmt.Fprintf(e.out, "Lỗi: %v\n", err)
	}
	e.logger.Error("command failed", zap.Error(err))
	return 1
}

func (e *env) newEmbedder(ctx context.Context) (embedding.Embedder, error) {
	return embedding.New(ctx, e.cfg.Embedding, e.logger)
}

// build loads and splits the documents, then embeds them with emb and writes
// a fresh store. When emb is nil the embedder is created only after the
// documents are known to yield chunks. The embedder used is returned with the
// store and belongs to the caller.
func (e *env) build(ctx context.Context, emb embedding.Embedder) (*vectorstore.Store, embedding.Embedder, error) {
	fmt.Fprintln(e.out, "Đang tải tài liệu, tạo embedding và lưu vào cơ sở dữ liệu...")
	docs, err := vectorstore.PrepareDocuments(ctx, e.cfg, vectorstore.WithLogger(e.logger))
	if err != nil {
		return nil, emb, err
	}
	if emb == nil {
		if emb, err = e.newEmbedder(ctx); err != nil {
			return nil, nil, err
		}
	}
	store, err := vectorstore.BuildPrepared(ctx, e.cfg, docs, emb, vectorstore.WithLogger(e.logger))
	if err != nil {
		return nil, emb, err
	}
	m := store.Manifest()
	fmt.Fprintf(e.out, "Đã lưu %d đoạn văn bản từ %d tài liệu vào %s.\n", m.RecordCount, m.DocumentCount, e.cfg.Paths.VectorDBDir)
	return store, emb, nil
}

// openStore builds the store when its directory does not exist yet and loads
// it otherwise. A directory without the marker is never rebuilt silently.
// Documents and the marker are checked before the embedding model is contacted.
func (e *env) openStore(ctx context.Context) (*vectorstore.Store, embedding.Embedder, error) {
	if _, err := os.Stat(e.cfg.Paths.VectorDBDir); errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(e.out, "Cơ sở dữ liệu vector chưa tồn tại.")
		return e.build(ctx, nil)
	}
	fmt.Fprintln(e.out, "Cơ sở dữ liệu vector đã tồn tại. Đang tải...")
	if _, err := vectorstore.Verify(ctx, e.cfg.Paths.VectorDBDir); err != nil {
		return nil, nil, err
	}
	emb, err := e.newEmbedder(ctx)
	if err != nil {
		return nil, nil, err
	}
	store, err := vectorstore.Load(ctx, e.cfg, emb, vectorstore.WithLogger(e.logger))
	return store, emb, err
}

func (e *env) session(ctx context.Context) (*chat.Session, embedding.Embedder, error) {
	if err := os.MkdirAll(e.cfg.Paths.DocumentsDir, 0755); err != nil {
		return nil, nil, err
	}
	store, emb, err := e.openStore(ctx)
	if err != nil {
		if emb != nil {
			_ = emb.Close()
		}
		return nil, nil, err
	}
	fmt.Fprintf(e.out, "Đang khởi tạo chatbot với mô hình %s...\n", e.cfg.LLM.Model)
	s, err := chat.Initialize(ctx, e.cfg, emb, chat.WithStore(store), chat.WithLogger(e.logger))
	if err != nil {
		_ = emb.Close()
		return nil, nil, err
	}
	return s, emb, nil
}

func runChat(args []string, stdin io.Reader, stdout io.Writer) int {
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	fs.SetOutput(stdout)
	configPath, debug := commonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	e, ok := setup(*configPath, *debug, stdout)
	if !ok {
		return 1
	}
	defer e.close()

	ctx := context.Background()
	s, emb, err := e.session(ctx)
	if err != nil {
		return e.reportError(err)
	}
	defer emb.Close()
	defer s.Close()

	fmt.Fprintln(stdout, "\n--- Chatbot đã sẵn sàng! ---")
	fmt.Fprintln(stdout, "Bạn có thể bắt đầu trò chuyện. Gõ 'exit' hoặc 'thoat' để kết thúc.")
	if err := cli.REPL(ctx, stdin, stdout, s); err != nil {
		e.logger.Error("chat loop ended", zap.Error(err))
		return 1
	}
	return 0
}

func runBuild(args []string, stdout io.Writer) int {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	fs.SetOutput(stdout)
	configPath, debug := commonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	e, ok := setup(*configPath, *debug, stdout)
	if !ok {
		return 1
	}
	defer e.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	store, emb, err := e.build(ctx, nil)
	if emb != nil {
		defer emb.Close()
	}
	if err != nil {
		return e.reportError(err)
	}
	_ = store.Close()
	return 0
}

// buildQuestion joins positional arguments into one question.
func buildQuestion(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves any flags (and their values) that appear after the
// question to the front so flag.Parse sees them.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func runAsk(args []string, stdout io.Writer) int {
	fs := flag.NewFlagSet("ask", flag.ContinueOnError)
	fs.SetOutput(stdout)
	configPath, debug := commonFlags(fs)
	output := fs.String("output", "text", "output format: text or json")
	if err := fs.Parse(argsReorder(args)); err != nil {
		return 2
	}
	question := buildQuestion(fs.Args())
	if question == "" {
		fmt.Fprintln(stdout, "Cách dùng: hoidap ask [flags] <câu hỏi>")
		return 1
	}
	format, err := cli.ParseOutputFormat(*output)
	if err != nil {
		fmt.Fprintln(stdout, err)
		return 1
	}
	// Progress lines would break JSON output.
	progress := stdout
	if format == cli.OutputJSON {
		progress = io.Discard
	}
	e, ok := setup(*configPath, *debug, progress)
	if !ok {
		return 1
	}
	defer e.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	s, emb, err := e.session(ctx)
	if err != nil {
		e.out = stdout
		return e.reportError(err)
	}
	defer emb.Close()
	defer s.Close()

	if err := cli.WriteResponse(stdout, s.Respond(ctx, question), format); err != nil {
		e.logger.Error("write response", zap.Error(err))
		return 1
	}
	return 0
}

func runStatus(args []string, stdout io.Writer) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(stdout)
	configPath, debug := commonFlags(fs)
	output := fs.String("output", "text", "output format: text or json")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	format, err := cli.ParseOutputFormat(*output)
	if err != nil {
		fmt.Fprintln(stdout, err)
		return 1
	}
	e, ok := setup(*configPath, *debug, stdout)
	if !ok {
		return 1
	}
	defer e.close()

	cfg := e.cfg
	st := &cli.Status{
		DocumentsDir: cfg.Paths.DocumentsDir,
		VectorDBDir:  cfg.Paths.VectorDBDir,
		Built:        vectorstore.Exists(cfg.Paths.VectorDBDir),
		IndexType:    cfg.Vector.IndexType,
		LLMProvider:  cfg.LLM.Provider,
		LLMModel:     cfg.LLM.Model,
		TopK:         cfg.Retrieval.TopK,
	}
	if st.Built {
		m, err := vectorstore.ReadManifest(context.Background(), cfg.Paths.VectorDBDir)
		if err != nil {
			return e.reportError(err)
		}
		st.Manifest = m
	}
	if n, err := storage.DiskUsageBytes(cfg.Paths.VectorDBDir); err == nil {
		st.DiskUsageBytes = &n
	}
	if err := cli.WriteStatus(stdout, st, format); err != nil {
		e.logger.Error("write status", zap.Error(err))
		return 1
	}
	return 0
}

func runWatch(args []string, stdout io.Writer) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(stdout)
	configPath, debug := commonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	e, ok := setup(*configPath, *debug, stdout)
	if !ok {
		return 1
	}
	defer e.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return e.watch(ctx)
}

// watch rebuilds the store whenever the documents directory changes, until
// ctx is cancelled.
func (e *env) watch(ctx context.Context, opts ...watcher.WatcherOption) int {
	// Rebuilds are serialized by the watcher, so emb needs no lock.
	var emb embedding.Embedder
	defer func() {
		if emb != nil {
			_ = emb.Close()
		}
	}()

	rebuild := func() {
		store, used, err := e.build(ctx, emb)
		emb = used
		if err != nil {
			if ctx.Err() == nil {
				e.reportError(err)
			}
			return
		}
		_ = store.Close()
	}
	if !vectorstore.Exists(e.cfg.Paths.VectorDBDir) {
		rebuild()
	}

	opts = append([]watcher.WatcherOption{watcher.WithLogger(e.logger)}, opts...)
	w := watcher.NewWatcher(e.cfg.Paths.DocumentsDir, documentExtensions, rebuild, opts...)
	if err := w.Start(ctx); err != nil {
		return e.reportError(err)
	}
	defer w.Stop()
	fmt.Fprintf(e.out, "Đang theo dõi thư mục %s. Nhấn Ctrl+C để dừng.\n", e.cfg.Paths.DocumentsDir)
	<-ctx.Done()
	return 0
}

func runInit(args []string, stdout io.Writer) int {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(stdout)
	configPath := fs.String("config", defaultConfigFile, "config file to write")
	force := fs.Bool("force", false, "overwrite an existing file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if _, err := os.Stat(*configPath); err == nil && !*force {
		fmt.Fprintf(stdout, "Tệp %s đã tồn tại (dùng -force để ghi đè).\n", *configPath)
		return 1
	}
	var cfg config.Config
	config.ApplyDefaults(&cfg)
	if err := os.MkdirAll(filepath.Dir(*configPath), 0755); err != nil {
		fmt.Fprintf(stdout, "Lỗi: %v\n", err)
		return 1
	}
	if err := config.Save(*configPath, &cfg); err != nil {
		fmt.Fprintf(stdout, "Lỗi: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Đã tạo %s.\n", *configPath)
	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `hoidap - Hỏi đáp tài liệu tiếng Việt (PDF, DOCX, XLSX) với mô hình ngôn ngữ cục bộ

Usage:
  hoidap [flags]                  Build or load the vector store and start chatting
  hoidap build [flags]            Rebuild the vector store from the documents directory
  hoidap ask [flags] <question>   Answer one question and exit
  hoidap status [flags]           Show vector store status
  hoidap watch [flags]            Rebuild the vector store when documents change
  hoidap init [flags]             Write a default config.yaml
  hoidap version                  Show version
  hoidap help                     Show this help

Flags (all commands):
  --config string    Config file path (default: ./config.yaml when present, else built-in defaults)
  --debug            Enable debug logging

Ask/Status Flags:
  --output string    Output format: text or json (default: text)

Init Flags:
  --config string    File to write (default: config.yaml)
  --force            Overwrite an existing file

Environment:
  HOIDAP_* variables override config values; a .env file in the working directory is loaded first.

Examples:
  hoidap
  hoidap ask "Học phí học kỳ này là bao nhiêu?"
  hoidap ask --output json "Ký túc xá mở cửa lúc mấy giờ?"
  hoidap status --output json
`)
}
