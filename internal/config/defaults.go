package config

const (
	defaultOutputDir         = "~/brickkit/output"
	defaultLogDir            = "~/.local/share/brickkit/logs"
	defaultHistoryDB         = "~/.local/share/brickkit/history.db"
	defaultAPIBind           = "127.0.0.1:7590"
	defaultCatalogBaseURL    = "https://library.ldraw.org/omr"
	defaultCatalogSearchURL  = "https://library.ldraw.org/omr/sets"
	defaultNavigationTimeout = 30
	defaultDownloadTimeout   = 60
	defaultRendererTimeout   = 300
	defaultRendererWidth     = 1280
	defaultRendererHeight    = 720
	defaultStepCeiling       = 15
	defaultMinArtifactBytes  = 1024
	defaultLLMBaseURL        = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel          = "anthropic/claude-sonnet-4.5"
	defaultLLMTitle          = "brickkit"
	defaultLLMTimeoutSeconds = 60
	defaultNotifyTimeout     = 10
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
			HistoryDB: defaultHistoryDB,
			APIBind:   defaultAPIBind,
		},
		Catalog: Catalog{
			BaseURL:                  defaultCatalogBaseURL,
			SearchURL:                defaultCatalogSearchURL,
			Headless:                 true,
			NavigationTimeoutSeconds: defaultNavigationTimeout,
			DownloadTimeoutSeconds:   defaultDownloadTimeout,
		},
		Renderer: Renderer{
			TimeoutSeconds:   defaultRendererTimeout,
			Width:            defaultRendererWidth,
			Height:           defaultRendererHeight,
			StepCeiling:      defaultStepCeiling,
			MinArtifactBytes: defaultMinArtifactBytes,
		},
		Documents: Documents{
			Enabled: true,
		},
		LLM: LLM{
			BaseURL:           defaultLLMBaseURL,
			Model:             defaultLLMModel,
			Title:             defaultLLMTitle,
			TimeoutSeconds:    defaultLLMTimeoutSeconds,
			SemanticAnalysis:  true,
			AdvisorySelection: true,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNotifyTimeout,
			NotifySuccess:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
