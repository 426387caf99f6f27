package graph

// Page is the paging window applied to a bulk query.
type Page struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// QueryResult is the assembled, deduplicated payload of one query.
type QueryResult struct {
	Nodes    []*Entity       `json:"nodes"`
	Edges    []*Relationship `json:"edges"`
	Metadata Metadata        `json:"metadata"`
}

// Metadata summarizes a QueryResult.
type Metadata struct {
	TotalNodes     int             `json:"total_nodes"`
	TotalEdges     int             `json:"total_edges"`
	NodeTypeCounts map[Kind]int    `json:"node_type_counts"`
	EdgeTypeCounts map[RelType]int `json:"edge_type_counts"`
	// Distributions holds per-relationship-type property distributions keyed by
	// distribution name, e.g. "mandate_status" for OWNS.
	Distributions  map[string]map[string]int `json:"distributions"`
	AppliedFilters *Filter                   `json:"applied_filters"`
	QueryParams    Page                      `json:"query_params"`
}

// Detail is the entity detail payload.
type Detail struct {
	Node                *Entity         `json:"node"`
	Relationships       []*Relationship `json:"relationships"`
	Neighbors           []*Entity       `json:"connected_nodes"`
	ConnectedNodesCount int             `json:"connected_nodes_count"`
}

// Summary is the filter-independent graph overview.
type Summary struct {
	TotalNodes             int64             `json:"total_nodes"`
	TotalEdges             int64             `json:"total_edges"`
	LabelCounts            map[string]int64  `json:"label_counts"`
	KindCounts             map[Kind]int64    `json:"kind_counts"`
	RelationshipTypeCounts map[RelType]int64 `json:"relationship_type_counts"`
}

// StaticRegions are the region values offered regardless of data.
var StaticRegions = []string{"NAI", "EMEA", "APAC"}

// NamedEntity is an (id, name) pair used to populate entity pickers.
type NamedEntity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// FilterOptions lists the values a caller can choose from for each filter.
type FilterOptions struct {
	Regions            []string      `json:"regions"`
	SalesRegions       []string      `json:"sales_regions"`
	Channels           []string      `json:"channels"`
	AssetClasses       []string      `json:"asset_classes"`
	MandateStatus      []string      `json:"mandate_status"`
	PrivacyLevels      []string      `json:"privacy_levels"`
	LevelOfInfluence   []string      `json:"level_of_influence"`
	PCA                []string      `json:"pca_options"`
	ACA                []string      `json:"aca_options"`
	RatingChanges      []string      `json:"rating_changes"`
	RankGroups         []string      `json:"rank_groups"`
	Professionals      []NamedEntity `json:"professionals"`
	Organizations      []NamedEntity `json:"organizations"`
	Offerings          []NamedEntity `json:"offerings"`
	FieldProfessionals []NamedEntity `json:"field_professionals"`
}

// InfluenceMetrics counts one professional's influence network.
type InfluenceMetrics struct {
	Organizations      int `json:"organizations_influenced"`
	Offerings          int `json:"offerings_influenced"`
	FieldProfessionals int `json:"field_professionals_reached"`
	Ratings            int `json:"ratings"`
	// TotalRelationships counts network relationships touching the
	// professional directly.
	TotalRelationships int `json:"total_relationships"`
}

// InfluenceNetwork is the merged influence network of several professionals
// with per-professional metrics keyed by engine id.
type InfluenceNetwork struct {
	QueryResult
	Professionals map[string]InfluenceMetrics `json:"professional_metrics"`
}
