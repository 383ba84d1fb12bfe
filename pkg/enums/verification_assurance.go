package enums

// VerificationAssurance flags how strong the identity proof behind a delivery
// confirmation was. The legacy receipt path proves possession of nothing, so
// its audit entries carry the weak flag.
type VerificationAssurance string

const (
	AssuranceCredential VerificationAssurance = "credential"
	AssuranceWeak       VerificationAssurance = "weak"
)

// IsValid reports whether the value matches the canonical assurance enum.
func (v VerificationAssurance) IsValid() bool {
	return v == AssuranceCredential || v == AssuranceWeak
}
