package risk

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"ecomverify/internal/probe"
)

// Bucket adds Add to the risk when the measured value reaches Min.
type Bucket struct {
	Min float64 `yaml:"min"`
	Add float64 `yaml:"add"`
}

// Weights are the additive contributions and cut points of the aggregator.
// Buckets are evaluated in order and the first match wins.
type Weights struct {
	KeywordBuckets     []Bucket `yaml:"keyword_buckets"`
	SpecialCharBuckets []Bucket `yaml:"special_char_buckets"`
	// DigitRatioBuckets match when the ratio is strictly greater than Min.
	DigitRatioBuckets []Bucket `yaml:"digit_ratio_buckets"`

	NoHTTPS   float64 `yaml:"no_https"`
	IPLiteral float64 `yaml:"ip_literal"`

	NoTerms         float64 `yaml:"no_terms"`
	NoRegulatory    float64 `yaml:"no_regulatory"`
	LowContact      float64 `yaml:"low_contact"`
	LowContactBelow float64 `yaml:"low_contact_below"`

	StrictNoFunctionalTerms float64 `yaml:"strict_no_functional_terms"`
	StrictComplaints        float64 `yaml:"strict_complaints"`
	StrictComplaintTerms    int     `yaml:"strict_complaint_terms"`
	StrictBrokenLinks       float64 `yaml:"strict_broken_links"`
	StrictBrokenLinkCount   int     `yaml:"strict_broken_link_count"`

	FraudThreshold        float64 `yaml:"fraud_threshold"`
	StrictConfidenceFloor float64 `yaml:"strict_confidence_floor"`
	FallbackConfidence    float64 `yaml:"fallback_confidence"`

	LevelVeryHigh float64 `yaml:"level_very_high"`
	LevelHigh     float64 `yaml:"level_high"`
	LevelModerate float64 `yaml:"level_moderate"`
	LevelLow      float64 `yaml:"level_low"`
}

// Rules is the complete immutable configuration of the engine. It is built
// once (DefaultRules or LoadRules) and passed by value.
type Rules struct {
	SuspiciousKeywords []string      `yaml:"suspicious_keywords"`
	SpecialChars       string        `yaml:"special_chars"`
	Weights            Weights       `yaml:"weights"`
	Probes             probe.Config  `yaml:"probes"`
	ProbeBudget        time.Duration `yaml:"probe_budget"`
}

func DefaultRules() Rules {
	return Rules{
		SuspiciousKeywords: []string{
			"oferta", "barato", "barata", "baratisimo", "descuento", "replica",
			"fake", "gratis", "outlet", "ganga", "chollo", "liquidacion", "rebaja",
			"promo", "mega", "super", "cheap", "free", "discount", "deal",
			"bargain", "clearance",
		},
		SpecialChars: "-_@~%=&!*+$,;",
		Weights: Weights{
			KeywordBuckets:     []Bucket{{Min: 3, Add: 0.4}, {Min: 2, Add: 0.2}, {Min: 1, Add: 0.1}},
			SpecialCharBuckets: []Bucket{{Min: 4, Add: 0.2}, {Min: 2, Add: 0.1}},
			DigitRatioBuckets:  []Bucket{{Min: 0.25, Add: 0.2}, {Min: 0.15, Add: 0.1}},

			NoHTTPS:   0.3,
			IPLiteral: 0.3,

			NoTerms:         0.15,
			NoRegulatory:    0.10,
			LowContact:      0.10,
			LowContactBelow: 0.5,

			StrictNoFunctionalTerms: 0.4,
			StrictComplaints:        0.3,
			StrictComplaintTerms:    3,
			StrictBrokenLinks:       0.3,
			StrictBrokenLinkCount:   3,

			FraudThreshold:        0.3,
			StrictConfidenceFloor: 0.7,
			FallbackConfidence:    0.9,

			LevelVeryHigh: 0.7,
			LevelHigh:     0.5,
			LevelModerate: 0.35,
			LevelLow:      0.2,
		},
		Probes: probe.Config{
			UserAgent:    probe.DefaultUserAgent,
			MaxBodyBytes: 2 * 1024 * 1024,
			PageTimeout:  8 * time.Second,
			GuessTimeout: 5 * time.Second,
			LinkTimeout:  3 * time.Second,

			TermsPathPatterns: []string{
				"/terms", "/terminos", "/términos", "/condiciones", "/conditions",
				"/legal", "/aviso-legal", "/privacidad", "/privacy", "/tos",
				"terms-of-service", "terms-and-conditions", "/politica",
			},
			TermsTextPatterns: []string{
				"términos", "terminos", "condiciones", "terms", "aviso legal",
				"legal", "privacidad", "privacy",
			},
			TermsGuessPaths: []string{"/terms", "/terminos-y-condiciones", "/aviso-legal", "/legal"},
			MaxTermsLinks:   5,

			RegulatoryCategories: []probe.Category{
				{Name: "consumer_protection", Keywords: []string{
					"protección al consumidor", "proteccion al consumidor", "defensa del consumidor",
					"indecopi", "profeco", "sernac", "consumer protection",
				}},
				{Name: "chamber_of_commerce", Keywords: []string{
					"cámara de comercio", "camara de comercio", "registro mercantil", "chamber of commerce",
				}},
				{Name: "regulator", Keywords: []string{
					"superintendencia", "regulado por", "autorizado por", "vigilado por",
					"comisión nacional", "comision nacional", "regulated by",
				}},
				{Name: "complaint_book", Keywords: []string{
					"libro de reclamaciones", "hoja de reclamaciones", "libro de quejas", "pqrs", "complaints book",
				}},
				{Name: "certification", Keywords: []string{
					"confianza online", "sello de confianza", "trusted shops", "certificado ssl",
					"certificación", "certificacion", "ekomi", "certified",
				}},
			},

			ContactLinkKeywords: []string{
				"contact", "contacto", "contactanos", "contáctanos", "atencion-al-cliente",
				"atención al cliente", "soporte", "support", "ayuda", "help",
			},
			AddressMarkers: []string{
				"calle", "avenida", "av.", "carrera", "jr.", "jirón", "dirección", "direccion",
				"address", "street", "plaza", "oficina", "código postal", "codigo postal", "c.p.",
			},

			ComplaintTerms: []string{
				"estafa", "estafadores", "me estafaron", "fraude", "fraudulento", "no llega",
				"no llegó", "nunca llegó", "no me llegó", "no recibí", "engaño", "engañosa",
				"falsificado", "pirata", "no responden", "no contestan", "sin respuesta",
				"no devuelven", "perdí mi dinero", "robaron", "denuncia", "scam",
				"never arrived", "never received", "ripoff",
			},
			ReviewMarkers: []string{
				"review", "comment", "opinion", "testimon", "reseña", "resena",
				"valoracion", "valoración", "comentario", "rating",
			},

			ImportantLinkKeywords: []string{
				"contact", "about", "nosotros", "quienes-somos", "quiénes somos", "support",
				"soporte", "ayuda", "help", "terms", "terminos", "términos", "condiciones",
				"returns", "devoluciones", "cambios", "warranty", "garantia", "garantía",
			},
			MaxImportantLinks: 5,
		},
		ProbeBudget: 20 * time.Second,
	}
}

// LoadRules overlays the YAML file at path on DefaultRules. Lists in the file
// replace the default lists; scalars absent from the file keep their default.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()
	if path == "" {
		return rules, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return rules, fmt.Errorf("read rules: %w", err)
	}
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return rules, fmt.Errorf("parse rules %s: %w", path, err)
	}
	rules = rules.normalized()
	if err := rules.Validate(); err != nil {
		return rules, fmt.Errorf("rules %s: %w", path, err)
	}
	return rules, nil
}

// WithUserAgent returns a copy of r using ua for outbound requests. An empty
// ua keeps the current one.
func (r Rules) WithUserAgent(ua string) Rules {
	if ua != "" {
		r.Probes.UserAgent = ua
	}
	return r
}

// WithProbeBudget returns a copy of r with a different per-probe budget.
func (r Rules) WithProbeBudget(d time.Duration) Rules {
	if d > 0 {
		r.ProbeBudget = d
	}
	return r
}

func (r Rules) Validate() error {
	var errs []error
	w := r.Weights
	for name, v := range map[string]float64{
		"fraud_threshold":         w.FraudThreshold,
		"strict_confidence_floor": w.StrictConfidenceFloor,
		"fallback_confidence":     w.FallbackConfidence,
		"low_contact_below":       w.LowContactBelow,
	} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s must be within [0,1], got %v", name, v))
		}
	}
	if !(w.LevelVeryHigh >= w.LevelHigh && w.LevelHigh >= w.LevelModerate && w.LevelModerate >= w.LevelLow) {
		errs = append(errs, errors.New("risk level cut points must be descending"))
	}
	if w.StrictComplaintTerms < 1 || w.StrictBrokenLinkCount < 1 {
		errs = append(errs, errors.New("strict rule counts must be at least 1"))
	}
	p := r.Probes
	if p.PageTimeout <= 0 || p.GuessTimeout <= 0 || p.LinkTimeout <= 0 || r.ProbeBudget <= 0 {
		errs = append(errs, errors.New("timeouts must be positive"))
	}
	if p.MaxTermsLinks < 1 || p.MaxImportantLinks < 1 {
		errs = append(errs, errors.New("link limits must be at least 1"))
	}
	for _, c := range p.RegulatoryCategories {
		if c.Name == "" || len(c.Keywords) == 0 {
			errs = append(errs, errors.New("regulatory categories need a name and keywords"))
			break
		}
	}
	return errors.Join(errs...)
}

// normalized lowercases and de-duplicates every vocabulary list.
func (r Rules) normalized() Rules {
	r.SuspiciousKeywords = vocabulary(r.SuspiciousKeywords)
	p := &r.Probes
	p.TermsPathPatterns = vocabulary(p.TermsPathPatterns)
	p.TermsTextPatterns = vocabulary(p.TermsTextPatterns)
	p.ContactLinkKeywords = vocabulary(p.ContactLinkKeywords)
	p.AddressMarkers = vocabulary(p.AddressMarkers)
	p.ComplaintTerms = vocabulary(p.ComplaintTerms)
	p.ReviewMarkers = vocabulary(p.ReviewMarkers)
	p.ImportantLinkKeywords = vocabulary(p.ImportantLinkKeywords)
	categories := make([]probe.Category, len(p.RegulatoryCategories))
	for i, c := range p.RegulatoryCategories {
		categories[i] = probe.Category{Name: c.Name, Keywords: vocabulary(c.Keywords)}
	}
	p.RegulatoryCategories = categories
	return r
}

func vocabulary(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
