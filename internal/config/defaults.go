package config

const (
	defaultConfigPath              = "~/.config/docsorter/config.toml"
	defaultInboxDir                = "~/Documents/Inbox_Scan"
	defaultOutputRoot              = "~/Documents/Sorted_Documents"
	defaultStateDir                = "~/.local/share/docsorter"
	defaultClassifierAPI           = APIOllama
	defaultOllamaBaseURL           = "http://localhost:11434"
	defaultClassifierModel         = "llama3.2"
	defaultClassifierTimeout       = 120
	defaultClassifierRetryAttempts = 2
	defaultPreviewLength           = 2000
	defaultMinContentLength        = 50
	defaultOCRLanguages            = "deu+eng"
	defaultOCRDPI                  = 300
	defaultPdftoppmBinary          = "pdftoppm"
	defaultTesseractBinary         = "tesseract"
	defaultStabilizationDelay      = 2.0
	defaultQueueSize               = 64
	defaultWorkers                 = 2
	defaultShutdownGrace           = 30
	defaultNtfyTimeout             = 10
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
)

const (
	// APIOllama selects the Ollama generate API.
	APIOllama = "ollama"
	// APIOpenAI selects an OpenAI-compatible chat completions API.
	APIOpenAI = "openai"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			InboxDir:   defaultInboxDir,
			OutputRoot: defaultOutputRoot,
			StateDir:   defaultStateDir,
		},
		Classifier: Classifier{
			API:              defaultClassifierAPI,
			BaseURL:          defaultOllamaBaseURL,
			Model:            defaultClassifierModel,
			TimeoutSeconds:   defaultClassifierTimeout,
			RetryMaxAttempts: defaultClassifierRetryAttempts,
			PreviewLength:    defaultPreviewLength,
		},
		Extraction: Extraction{
			MinContentLength: defaultMinContentLength,
			OCRLanguages:     defaultOCRLanguages,
			OCRDPI:           defaultOCRDPI,
			PdftoppmBinary:   defaultPdftoppmBinary,
			TesseractBinary:  defaultTesseractBinary,
		},
		Watcher: Watcher{
			StabilizationDelaySeconds: defaultStabilizationDelay,
		},
		Pipeline: Pipeline{
			QueueSize:            defaultQueueSize,
			Workers:              defaultWorkers,
			ShutdownGraceSeconds: defaultShutdownGrace,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNtfyTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
