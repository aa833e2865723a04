package filosofi

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Attribute names of the Filosofi tables.
const (
	AttrTaxReferentAge = "tax_referent_age"
	AttrHouseholdSize  = "household_size"
	AttrHousingTenure  = "housing_tenure"
	AttrHouseholdType  = "household_type"
	AttrIncomeSource   = "income_source"
)

// Modality is one stratum of an attribute and where to find it in the workbook.
type Modality struct {
	Name       string `yaml:"name"`
	Sheet      string `yaml:"sheet"`
	ColPattern string `yaml:"col_pattern"`
}

// Attribute is a demographic attribute with its ordered modalities.
type Attribute struct {
	Name       string     `yaml:"name"`
	Modalities []Modality `yaml:"modalities"`
}

// Registry is the ordered list of attributes to extract.
type Registry struct {
	Attributes []Attribute `yaml:"attributes"`
}

// DefaultRegistry returns the Filosofi 2015 attribute layout.
func DefaultRegistry() *Registry {
	return &Registry{Attributes: []Attribute{
		{Name: AttrTaxReferentAge, Modalities: []Modality{
			{Name: "0_29", Sheet: "TRAGERF_1", ColPattern: "AGE1"},
			{Name: "30_39", Sheet: "TRAGERF_2", ColPattern: "AGE2"},
			{Name: "40_49", Sheet: "TRAGERF_3", ColPattern: "AGE3"},
			{Name: "50_59", Sheet: "TRAGERF_4", ColPattern: "AGE4"},
			{Name: "60_74", Sheet: "TRAGERF_5", ColPattern: "AGE5"},
			{Name: "75_or_more", Sheet: "TRAGERF_6", ColPattern: "AGE6"},
		}},
		{Name: AttrHouseholdSize, Modalities: []Modality{
			{Name: "1_pers", Sheet: "TAILLEM_1", ColPattern: "TME1"},
			{Name: "2_pers", Sheet: "TAILLEM_2", ColPattern: "TME2"},
			{Name: "3_pers", Sheet: "TAILLEM_3", ColPattern: "TME3"},
			{Name: "4_pers", Sheet: "TAILLEM_4", ColPattern: "TME4"},
			{Name: "5_pers_or_more", Sheet: "TAILLEM_5", ColPattern: "TME5"},
		}},
		{Name: AttrHousingTenure, Modalities: []Modality{
			{Name: "Owner", Sheet: "OCCTYPR_1", ColPattern: "TOL1"},
			{Name: "Tenant", Sheet: "OCCTYPR_2", ColPattern: "TOL2"},
		}},
		{Name: AttrHouseholdType, Modalities: []Modality{
			{Name: "Single_man", Sheet: "TYPMENR_1", ColPattern: "TYM1"},
			{Name: "Single_woman", Sheet: "TYPMENR_2", ColPattern: "TYM2"},
			{Name: "Couple_without_child", Sheet: "TYPMENR_3", ColPattern: "TYM3"},
			{Name: "Couple_with_child", Sheet: "TYPMENR_4", ColPattern: "TYM4"},
			{Name: "Single_parent", Sheet: "TYPMENR_5", ColPattern: "TYM5"},
			{Name: "complex_hh", Sheet: "TYPMENR_6", ColPattern: "TYM6"},
		}},
		{Name: AttrIncomeSource, Modalities: []Modality{
			{Name: "Salary", Sheet: "OPRDEC_1", ColPattern: "OPR1"},
			{Name: "Unemployment", Sheet: "OPRDEC_2", ColPattern: "OPR2"},
			{Name: "Independent", Sheet: "OPRDEC_3", ColPattern: "OPR3"},
			{Name: "Pension", Sheet: "OPRDEC_4", ColPattern: "OPR4"},
			{Name: "Property", Sheet: "OPRDEC_5", ColPattern: "OPR5"},
			{Name: "None", Sheet: "OPRDEC_6", ColPattern: "OPR6"},
		}},
	}}
}

// LoadRegistry reads a registry from a YAML file with a top-level
// "attributes" list.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "filosofi: read registry %s", path)
	}
	return ParseRegistry(data)
}

// ParseRegistry decodes and validates a YAML registry.
func ParseRegistry(data []byte) (*Registry, error) {
	var r Registry
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, eris.Wrap(err, "filosofi: parse registry")
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// Validate checks that attribute names, modality names and sheets are set and
// unique.
func (r *Registry) Validate() error {
	if len(r.Attributes) == 0 {
		return eris.New("filosofi: registry has no attributes")
	}
	attrs := make(map[string]bool)
	sheets := make(map[string]bool)
	for _, a := range r.Attributes {
		if a.Name == "" {
			return eris.New("filosofi: registry attribute without name")
		}
		if attrs[a.Name] {
			return eris.Errorf("filosofi: duplicate attribute %q", a.Name)
		}
		attrs[a.Name] = true
		if len(a.Modalities) == 0 {
			return eris.Errorf("filosofi: attribute %q has no modalities", a.Name)
		}
		mods := make(map[string]bool)
		for _, m := range a.Modalities {
			if m.Name == "" || m.Sheet == "" || m.ColPattern == "" {
				return eris.Errorf("filosofi: attribute %q has an incomplete modality", a.Name)
			}
			if mods[m.Name] {
				return eris.Errorf("filosofi: duplicate modality %q in %q", m.Name, a.Name)
			}
			if sheets[m.Sheet] {
				return eris.Errorf("filosofi: sheet %q used twice", m.Sheet)
			}
			mods[m.Name] = true
			sheets[m.Sheet] = true
		}
	}
	return nil
}

// Attribute returns the named attribute.
func (r *Registry) Attribute(name string) (Attribute, bool) {
	for _, a := range r.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

// ModalityCount is the total number of modalities across attributes.
func (r *Registry) ModalityCount() int {
	n := 0
	for _, a := range r.Attributes {
		n += len(a.Modalities)
	}
	return n
}

// Sheets lists every sheet name in registry order.
func (r *Registry) Sheets() []string {
	var out []string
	for _, a := range r.Attributes {
		for _, m := range a.Modalities {
			out = append(out, m.Sheet)
		}
	}
	return out
}

// MissingSheets lists the registry sheets absent from available, in registry
// order.
func (r *Registry) MissingSheets(available []string) []string {
	have := make(map[string]bool, len(available))
	for _, name := range available {
		have[name] = true
	}
	var out []string
	for _, name := range r.Sheets() {
		if !have[name] {
			out = append(out, name)
		}
	}
	return out
}

// CheckShape returns a *StructuralError when t does not carry exactly the
// registry's attributes and modalities.
func (r *Registry) CheckShape(t *Table) error {
	attrs, mods := t.Attributes()
	if attrs != len(r.Attributes) || mods != r.ModalityCount() {
		return &StructuralError{
			WantAttributes: len(r.Attributes),
			GotAttributes:  attrs,
			WantModalities: r.ModalityCount(),
			GotModalities:  mods,
		}
	}
	return nil
}
