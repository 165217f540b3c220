package coredesc

const (
	// [core] keys
	CoreSectionName    = "core"
	NameKey            = "name"
	DataDepthKey       = "data_depth"
	MatchUnitsKey      = "match_units"
	MaxWindowSizeKey   = "max_window_size"
	AdvancedTriggerKey = "advanced_trigger"
	CountersKey        = "counters"
	CounterWidthKey    = "counter_width"
	FlagsKey           = "flags"
	TsmStatesKey       = "tsm_states"

	// [ports] holds one "<index> = <width>" line per port
	PortsSectionName = "ports"

	// [probe <name>] keys
	ProbeSectionPrefix = "probe "
	WidthKey           = "width"
	FragmentsKey       = "fragments"
)
