package domain

// StandardDomain is the taxonomy domain holding canonical labels.
const StandardDomain = "STANDARD"

type EntityType string

const (
	EntityDisease          EntityType = "Disease"
	EntityCause            EntityType = "Cause"
	EntitySymptom          EntityType = "Symptom"
	EntityTreatment        EntityType = "Treatment"
	EntityDiagnosis        EntityType = "Diagnosis"
	EntityPrevention       EntityType = "Prevention"
	EntityAnatomy          EntityType = "Anatomy"
	EntityComplication     EntityType = "Complication"
	EntityContraindication EntityType = "Contraindication"
)

type RelationType string

const (
	RelationHasSymptom      RelationType = "HAS_SYMPTOM"
	RelationCausedBy        RelationType = "CAUSED_BY"
	RelationRiskFactor      RelationType = "RISK_FACTOR"
	RelationTreatedWith     RelationType = "TREATED_WITH"
	RelationDiagnosedBy     RelationType = "DIAGNOSED_BY"
	RelationPreventedBy     RelationType = "PREVENTED_BY"
	RelationAffects         RelationType = "AFFECTS"
	RelationComplicationOf  RelationType = "COMPLICATION_OF"
	RelationContraindicates RelationType = "CONTRAINDICATES"
)

type QueryType string

const (
	QueryDiseaseTreatments QueryType = "disease_treatments"
	QueryDiseaseSymptoms   QueryType = "disease_symptoms"
	QueryDiseaseCauses     QueryType = "disease_causes"
	QueryDiseasesByAnatomy QueryType = "diseases_by_anatomy"
	QueryDiseasesBySymptom QueryType = "diseases_by_symptom"
	QuerySimilarDiseases   QueryType = "similar_diseases"
	QueryUnknown           QueryType = "unknown"
)

func AllQueryTypes() []QueryType {
	return []QueryType{
		QueryDiseaseTreatments,
		QueryDiseaseSymptoms,
		QueryDiseaseCauses,
		QueryDiseasesByAnatomy,
		QueryDiseasesBySymptom,
		QuerySimilarDiseases,
	}
}

// VisualHit is one nearest neighbour returned by the visual store.
type VisualHit struct {
	ID              string  `json:"id"`
	Distance        float64 `json:"distance"`
	Label           string  `json:"label"`
	DomainID        string  `json:"domain_id,omitempty"`
	DomainDiseaseID string  `json:"domain_disease_id,omitempty"`
}

// KeywordMatch is one entity from the keyword index that matched an extracted keyword.
type KeywordMatch struct {
	Entity   string     `json:"entity"`
	Type     EntityType `json:"type"`
	Docs     []string   `json:"docs"`
	Distance float64    `json:"distance"`
}

// KeywordMatches maps each query keyword to its accepted matches, in query order.
type KeywordMatches struct {
	Keywords []string
	Matches  map[string][]KeywordMatch
}

func (m KeywordMatches) Total() int {
	n := 0
	for _, items := range m.Matches {
		n += len(items)
	}
	return n
}

// DocumentHit is one nearest description document.
type DocumentHit struct {
	Disease  string  `json:"disease"`
	Text     string  `json:"text"`
	Distance float64 `json:"distance"`
}

// GraphEdge is one (subject, object) pair from a knowledge-graph traversal.
type GraphEdge struct {
	SubjectName string `json:"subject_name"`
	ObjectName  string `json:"object_name"`
}

// CrossMap links a foreign (domain, disease) pair to a canonical label.
type CrossMap struct {
	ForeignDomainID  string `json:"foreign_domain_id"`
	ForeignDiseaseID string `json:"foreign_disease_id"`
	CanonicalLabel   string `json:"canonical_label"`
}

// DiseaseDescription is the descriptive text of one canonical disease.
type DiseaseDescription struct {
	Label       string `json:"label"`
	Description string `json:"description"`
}

// ForeignLabel is one disease row of a foreign label set awaiting cross-mapping.
type ForeignLabel struct {
	DiseaseID string `json:"disease_id"`
	Label     string `json:"label"`
}

// CrossMapImportReport summarizes one cross-map import run.
type CrossMapImportReport struct {
	Matched   []CrossMap     `json:"matched"`
	Unmatched []ForeignLabel `json:"unmatched"`
	Stored    int            `json:"stored"`
}
