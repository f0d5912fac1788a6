// Package server exposes the readease HTTP API.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/sorintlab/errors"
	"golang.org/x/sync/errgroup"

	"github.com/wudi/readease/internal/accessibility"
	"github.com/wudi/readease/internal/config"
	"github.com/wudi/readease/internal/correct"
	"github.com/wudi/readease/internal/genai"
	"github.com/wudi/readease/internal/mistral"
	"github.com/wudi/readease/internal/objectstorage"
	"github.com/wudi/readease/internal/speech"
	"github.com/wudi/readease/internal/sql"
	"github.com/wudi/readease/internal/task"
	"github.com/wudi/readease/observability"
	"github.com/wudi/readease/ocr"
	"github.com/wudi/readease/ocr/tesseract"
)

const shutdownTimeout = 10 * time.Second

// OCREngine is an engine able to report its version.
type OCREngine interface {
	ocr.Engine
	Versioner
}

type Server struct {
	log zerolog.Logger
	c   *config.Config

	engine    OCREngine
	ost       objectstorage.Storage
	store     task.Store
	gen       *genai.Client
	mistral   *mistral.Client
	speech    *speech.Client
	checker   *accessibility.Checker
	tasks     *task.Manager
	ocrEngine ocr.Engine
}

// NewOCREngine builds the engine selected by the configuration.
func NewOCREngine(log zerolog.Logger, c config.OCR) (OCREngine, error) {
	switch c.Engine {
	case config.OCREngineLibrary:
		e, err := tesseract.NewLibraryEngine(c.TessdataPrefix)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		return e, nil
	case config.OCREngineCLI, "":
		return tesseract.NewCLIEngine(c.TesseractCmd,
			tesseract.WithTessdataDir(c.TessdataPrefix),
			tesseract.WithTimeout(c.Timeout),
			tesseract.WithLogger(observability.NewZerolog(log)),
		), nil
	default:
		return nil, errors.Errorf("unknown ocr engine %q", c.Engine)
	}
}

// NewObjectStorage builds the storage selected by the configuration.
func NewObjectStorage(ctx context.Context, c config.Storage) (objectstorage.Storage, error) {
	switch c.Type {
	case config.StorageTypePosix, "":
		ost, err := objectstorage.NewPosix(c.Path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create posix storage")
		}
		return ost, nil
	case config.StorageTypeS3:
		ost, err := objectstorage.NewS3(ctx, c.S3.Bucket, c.S3.Location, c.S3.Endpoint, c.S3.AccessKey, c.S3.SecretKey, c.S3.UseSSL)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create s3 storage")
		}
		return ost, nil
	default:
		return nil, errors.Errorf("unknown storage type %q", c.Type)
	}
}

// NewTaskStore builds the task store selected by the configuration.
func NewTaskStore(ctx context.Context, log zerolog.Logger, c config.DB) (task.Store, error) {
	switch c.Type {
	case config.DBTypeMemory, "":
		return task.NewMemStore()
	case config.DBTypeSqlite3, config.DBTypePostgres:
		sdb, err := sql.NewDB(sql.Type(c.Type), c.ConnString)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open %s db", c.Type)
		}
		s, err := task.NewSQLStore(ctx, log, sdb)
		if err != nil {
			sdb.Close()
			return nil, errors.WithStack(err)
		}
		return s, nil
	default:
		return nil, errors.Errorf("unknown db type %q", c.Type)
	}
}

func NewServer(ctx context.Context, log zerolog.Logger, c *config.Config) (*Server, error) {
	s := &Server{log: log, c: c}

	var err error
	if s.engine, err = NewOCREngine(log, c.OCR); err != nil {
		return nil, err
	}
	s.ocrEngine = s.engine
	if c.OCR.CacheSize > 0 {
		s.ocrEngine = ocr.NewCachingEngine(s.engine, c.OCR.CacheSize)
	}

	if s.ost, err = NewObjectStorage(ctx, c.Storage); err != nil {
		return nil, err
	}
	if s.store, err = NewTaskStore(ctx, log, c.Tasks.DB); err != nil {
		return nil, err
	}

	s.gen = genai.NewClient(log, c.Gemini.URL, c.Gemini.APIKey, c.HTTPTimeout)
	s.mistral = mistral.NewClient(log, c.Mistral.URL, c.Mistral.APIKey, c.Mistral.Model, c.HTTPTimeout)
	s.speech = speech.NewClient(log, c.Google.TTSURL, c.Google.STTURL, c.Google.APIKey, c.Google.DefaultVoice, c.HTTPTimeout)

	var summarizer accessibility.Summarizer
	if s.gen.Configured() {
		summarizer = accessibility.NewModelSummarizer(s.gen, c.Gemini.Model)
	}
	s.checker = accessibility.NewChecker(log, summarizer)
	if c.Web.AllowPrivateFetch {
		s.checker.AllowPrivateNetworks()
	}

	s.tasks = task.NewManager(log, s.store, s.ost, c.Tasks.Workers, c.Tasks.QueueSize)
	media := task.NewMediaProcessor(log, s.gen, c.Gemini.MediaModel, s.ost)
	for _, typ := range []task.Type{task.TypeTranscription, task.TypeTranslation, task.TypeSummarization} {
		s.tasks.Register(typ, media)
	}
	s.tasks.Register(task.TypeOCR, task.NewOCRProcessor(s.ocrEngine, s.ocrOptions()...))

	return s, nil
}

func (s *Server) ocrOptions() []ocr.InputOption {
	opts := []ocr.InputOption{}
	if len(s.c.OCR.Languages) > 0 {
		opts = append(opts, ocr.WithLanguages(s.c.OCR.Languages...))
	}
	if s.c.OCR.DPI > 0 {
		opts = append(opts, ocr.WithDPI(s.c.OCR.DPI))
	}
	return opts
}

// Handler returns the API router wrapped in the server middlewares.
func (s *Server) Handler() http.Handler {
	log := s.log

	welcomeHandler := NewWelcomeHandler(log, s.c.Project)
	docsHandler := NewDocsHandler(log)
	healthHandler := NewHealthHandler(log, s.engine)

	imageToTextHandler := NewImageToTextHandler(log, s.ocrEngine, s.ocrOptions()...)
	pdfToMarkdownHandler := NewPDFToMarkdownHandler(log, mistral.NewConverter(s.mistral))
	markdownToPDFHandler := NewMarkdownToPDFHandler(log, s.c.Project.Name)
	markdownToHTMLHandler := NewMarkdownToHTMLHandler(log)
	textToSpeechHandler := NewTextToSpeechHandler(log, speech.NewSynthesizer(log, s.speech, s.ost), s.c.Google.DefaultRate)
	speechToTextHandler := NewSpeechToTextHandler(log, s.speech)
	spellCorrectHandler := NewSpellCorrectHandler(log, correct.New(s.gen, s.c.Gemini.Model))
	accessibilityHandler := NewAccessibilityHandler(log, s.checker)

	processHandler := NewProcessHandler(log, s.tasks, "")
	transcribeHandler := NewProcessHandler(log, s.tasks, task.TypeTranscription)
	taskHandler := NewTaskHandler(log, s.tasks)

	router := mux.NewRouter()
	router.Handle("/", welcomeHandler).Methods("GET")
	router.Handle("/docs", docsHandler).Methods("GET")
	router.Handle("/healthz", healthHandler).Methods("GET")

	apirouter := router.PathPrefix("/api").Subrouter()
	apirouter.Handle("/image-to-text", imageToTextHandler).Methods("POST")
	apirouter.Handle("/pdf-to-markdown", pdfToMarkdownHandler).Methods("POST")
	apirouter.Handle("/markdown-to-pdf", markdownToPDFHandler).Methods("POST")
	apirouter.Handle("/markdown-to-html", markdownToHTMLHandler).Methods("POST")
	apirouter.Handle("/text-to-speech", textToSpeechHandler).Methods("POST")
	apirouter.Handle("/speech-to-text", speechToTextHandler).Methods("POST")
	apirouter.Handle("/spell-correct", spellCorrectHandler).Methods("POST")
	apirouter.Handle("/web-accessibility/check-accessibility", accessibilityHandler).Methods("POST")
	// registered before the generic route so it is not read as a type
	apirouter.Handle("/process/transcribe", transcribeHandler).Methods("POST")
	apirouter.Handle("/process/{process_type}", processHandler).Methods("POST")
	apirouter.Handle("/process/{task_id}", taskHandler).Methods("GET")

	var h http.Handler = router
	h = maxBody(s.c.Web.MaxUploadBytes)(h)
	h = cors(s.c.Web.CORSOrigins)(h)
	h = recovery(log)(h)
	h = requestLogger(log)(h)
	return h
}

// Run serves the API and the task workers until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	defer func() {
		if err := s.store.Close(); err != nil {
			s.log.Warn().Err(err).Msg("failed to close task store")
		}
	}()

	if err := s.tasks.Recover(ctx); err != nil {
		return errors.WithStack(err)
	}

	httpServer := &http.Server{
		Addr:    s.c.Web.ListenAddress,
		Handler: s.Handler(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.tasks.Run(gctx)
	})
	g.Go(func() error {
		s.log.Info().Str("address", s.c.Web.ListenAddress).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrapf(err, "http server listen error")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.log.Info().Msg("server exiting")

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(sctx); err != nil {
			s.log.Warn().Err(err).Msg("graceful shutdown failed")
			return errors.WithStack(httpServer.Close())
		}
		return nil
	})

	return errors.WithStack(g.Wait())
}
