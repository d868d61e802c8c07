package cli

// Flags holds all command-line flag values
type Flags struct {
	// General flags
	CfgFile string
	Verbose bool
	JSON    bool
	Export  string

	// Translation flags
	SourceLang       string
	IntermediateLang string
	TranslateOnly    bool
	Report           bool
	Provider         string
	UserAgent        string
	MaxAttempts      int

	// Cache flags
	CachePath    string
	CacheBackend string
	CacheSize    int
	Threshold    float64
	Fuzzy        bool
	Stats        bool
	ClearCache   bool
	ArchiveCache bool
	SearchCache  string

	// Batch flags
	BatchFile string
	Workers   int

	// History flags
	History       bool
	HistoryPath   string
	ListHistory   bool
	SearchHistory string

	// Server flags
	ServeAddr string
}

// NewFlags creates a new Flags instance with default values
func NewFlags() *Flags {
	return &Flags{
		SourceLang:       "en",
		IntermediateLang: "ja",
		Provider:         "google_unofficial",
		MaxAttempts:      4,
		CacheBackend:     "json",
		CacheSize:        1000,
		Threshold:        0.8,
		Fuzzy:            true,
		Workers:          4,
	}
}
