package engine

import "time"

// Config holds every tunable of the run pipeline. The thresholds are
// configuration, not law; the zero value of any field falls back to
// the default the system was tuned with.
type Config struct {
	// MaxPDFs caps how many documents the priority phase analyzes.
	MaxPDFs int `mapstructure:"max_pdfs" yaml:"max_pdfs"`
	// MaxPDFChars truncates extracted document text.
	MaxPDFChars int `mapstructure:"max_pdf_chars" yaml:"max_pdf_chars"`

	// BatchSize, BatchOverlap and FirstChunk shape oracle batches.
	BatchSize    int `mapstructure:"batch_size" yaml:"batch_size"`
	BatchOverlap int `mapstructure:"batch_overlap" yaml:"batch_overlap"`
	FirstChunk   int `mapstructure:"first_chunk" yaml:"first_chunk"`
	// MaxBatchesPerDoc caps oracle calls for one source.
	MaxBatchesPerDoc int `mapstructure:"max_batches_per_doc" yaml:"max_batches_per_doc"`
	// ReductionThreshold and MinKeptChars guard against batch filtering
	// discarding nearly all of a document.
	ReductionThreshold float64 `mapstructure:"reduction_threshold" yaml:"reduction_threshold"`
	MinKeptChars       int     `mapstructure:"min_kept_chars" yaml:"min_kept_chars"`

	// QueriesPerCriterion bounds enhanced-search query fan-out.
	QueriesPerCriterion int `mapstructure:"queries_per_criterion" yaml:"queries_per_criterion"`
	// SearchResults is the result limit requested per query.
	SearchResults int `mapstructure:"search_results" yaml:"search_results"`
	// MaxSearchPages caps pages fetched during enhanced search.
	MaxSearchPages int `mapstructure:"max_search_pages" yaml:"max_search_pages"`

	// MaxCrawlPages and MaxCrawlDepth bound the fallback crawl.
	MaxCrawlPages int `mapstructure:"max_crawl_pages" yaml:"max_crawl_pages"`
	MaxCrawlDepth int `mapstructure:"max_crawl_depth" yaml:"max_crawl_depth"`

	// QualityThreshold is the mean found score at which the run stops
	// early once every criterion has evidence.
	QualityThreshold float64 `mapstructure:"quality_threshold" yaml:"quality_threshold"`

	// Per-phase wall-clock budgets. Blocking calls inside a phase
	// carry their own per-call timeouts in the collaborators.
	PriorityBudget time.Duration `mapstructure:"priority_budget" yaml:"priority_budget"`
	SearchBudget   time.Duration `mapstructure:"search_budget" yaml:"search_budget"`
	CrawlBudget    time.Duration `mapstructure:"crawl_budget" yaml:"crawl_budget"`

	// Workers caps the per-phase worker pool.
	Workers int `mapstructure:"workers" yaml:"workers"`

	// MinQuoteChars rejects evidence quotes shorter than this.
	MinQuoteChars int `mapstructure:"min_quote_chars" yaml:"min_quote_chars"`
	// LowConfidenceWarn logs a warning below this confidence, the
	// record is still accepted.
	LowConfidenceWarn int `mapstructure:"low_confidence_warn" yaml:"low_confidence_warn"`
	// MentionThreshold is the entity-name mention floor for off-domain
	// sources; DomainMentionThreshold the lower floor on entity domains.
	MentionThreshold       int `mapstructure:"mention_threshold" yaml:"mention_threshold"`
	DomainMentionThreshold int `mapstructure:"domain_mention_threshold" yaml:"domain_mention_threshold"`
	// MinTextChars and MinKeywordHits tune the keyword screening rule.
	MinTextChars   int `mapstructure:"min_text_chars" yaml:"min_text_chars"`
	MinKeywordHits int `mapstructure:"min_keyword_hits" yaml:"min_keyword_hits"`
}

// withDefaults backfills zero values so a partially configured engine
// still behaves like the tuned system.
func (c Config) withDefaults() Config {
	if c.MaxPDFs <= 0 {
		c.MaxPDFs = 3
	}
	if c.MaxPDFChars <= 0 {
		c.MaxPDFChars = 200_000
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 8000
	}
	if c.BatchOverlap <= 0 {
		c.BatchOverlap = 500
	}
	if c.FirstChunk <= 0 {
		c.FirstChunk = 25_000
	}
	if c.MaxBatchesPerDoc <= 0 {
		c.MaxBatchesPerDoc = 5
	}
	if c.ReductionThreshold <= 0 || c.ReductionThreshold > 1 {
		c.ReductionThreshold = 0.90
	}
	if c.MinKeptChars <= 0 {
		c.MinKeptChars = 1000
	}
	if c.QueriesPerCriterion <= 0 {
		c.QueriesPerCriterion = 2
	}
	if c.SearchResults <= 0 {
		c.SearchResults = 5
	}
	if c.MaxSearchPages <= 0 {
		c.MaxSearchPages = 8
	}
	if c.MaxCrawlPages <= 0 {
		c.MaxCrawlPages = 12
	}
	if c.MaxCrawlDepth <= 0 {
		c.MaxCrawlDepth = 2
	}
	if c.QualityThreshold <= 0 {
		c.QualityThreshold = 2.0
	}
	if c.PriorityBudget <= 0 {
		c.PriorityBudget = 15 * time.Minute
	}
	if c.SearchBudget <= 0 {
		c.SearchBudget = 10 * time.Minute
	}
	if c.CrawlBudget <= 0 {
		c.CrawlBudget = 40 * time.Minute
	}
	if c.Workers <= 0 || c.Workers > 4 {
		c.Workers = 4
	}
	if c.MinQuoteChars <= 0 {
		c.MinQuoteChars = 5
	}
	if c.LowConfidenceWarn <= 0 {
		c.LowConfidenceWarn = 40
	}
	if c.MentionThreshold <= 0 {
		c.MentionThreshold = 2
	}
	if c.DomainMentionThreshold <= 0 {
		c.DomainMentionThreshold = 1
	}
	if c.MinTextChars <= 0 {
		c.MinTextChars = 300
	}
	if c.MinKeywordHits <= 0 {
		c.MinKeywordHits = 2
	}
	return c
}
