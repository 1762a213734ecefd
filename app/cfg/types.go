package cfg

type Cfg struct {
	// Storage configuration
	DBPath string

	// Application configuration
	FeedsDir    string
	Port        string
	BaseUrl     string
	WorkerCount int

	// WebSub hub configuration
	HubURL        string
	HubUser       string
	HubPassword   string
	LeaseSeconds  int
	RenewInterval int

	// Pipeline configuration
	DedupTTL       int
	ClaimTTL       int
	SweepInterval  int
	ProcessDelay   int
	PublishTimeout int

	// Rephrasing backend
	LLMBaseURL  string
	LLMAPIKeys  []string
	LLMModel    string
	KeyCooldown int

	// Publish destinations
	Platforms           []string
	FacebookPageIDs     []string
	FacebookPageTokens  []string
	TwitterBearerTokens []string

	// One-shot modes
	SubscribeOnly bool
	Unsubscribe   bool

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}

// CallbackURL returns the public webhook callback URL the hub pushes to.
func (c *Cfg) CallbackURL() string {
	if c.BaseUrl == "" {
		return ""
	}
	return c.BaseUrl + "/webhook"
}
