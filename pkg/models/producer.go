package models

// UnitKind tags the producer variant of an asset.
type UnitKind string

const (
	UnitKindSourcePlaceholder UnitKind = "source_placeholder" // Exists only to be depended upon
	UnitKindSyncTarget        UnitKind = "sync_target"        // Relational table copied to the warehouse
	UnitKindExtract           UnitKind = "extract"            // Pull from an external API
	UnitKindReportGenerator   UnitKind = "report_generator"   // Generated file report
	UnitKindNotifier          UnitKind = "notifier"           // Informs an external system
	UnitKindDbt               UnitKind = "dbt"                // dbt model or seed built in the warehouse
)

// Producer is the closed set of things an asset can run. Each variant carries
// only the data its execution needs, so a graph can be inspected without running anything.
type Producer interface {
	Kind() UnitKind
	isProducer()
}

// SyncTarget copies Table from the source system into the warehouse.
type SyncTarget struct {
	System string `json:"system"`
	Table  string `json:"table"`
}

func (SyncTarget) Kind() UnitKind { return UnitKindSyncTarget }
func (SyncTarget) isProducer()    {}

// Extract pulls Stream from an external Provider.
type Extract struct {
	Provider string `json:"provider"`
	Stream   string `json:"stream"`
}

func (Extract) Kind() UnitKind { return UnitKindExtract }
func (Extract) isProducer()    {}

// ReportGenerator renders a named file report.
type ReportGenerator struct {
	Report string `json:"report"`
}

func (ReportGenerator) Kind() UnitKind { return UnitKindReportGenerator }
func (ReportGenerator) isProducer()    {}

// Dbt resource types.
const (
	DbtModel = "model"
	DbtSeed  = "seed"
)

// Dbt builds one dbt node. Resource is DbtModel or DbtSeed.
type Dbt struct {
	Resource string `json:"resource"`
	Name     string `json:"name"`
}

func (Dbt) Kind() UnitKind { return UnitKindDbt }
func (Dbt) isProducer()    {}

// Notifier informs Target about the outcome of upstream runs.
type Notifier struct {
	Target string `json:"target"`
}

func (Notifier) Kind() UnitKind { return UnitKindNotifier }
func (Notifier) isProducer()    {}
