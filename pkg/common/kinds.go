package common

// Kind is a relationship kind. The set is closed: adding a kind means
// adding it here and to the inverse table, which keeps inverse inference a
// compile-time-visible decision.
type Kind string

const (
	KindRelatesTo     Kind = "RELATES_TO"
	KindIsA           Kind = "IS_A"
	KindHasInstances  Kind = "HAS_INSTANCES"
	KindPartOf        Kind = "PART_OF"
	KindHasParts      Kind = "HAS_PARTS"
	KindDependsOn     Kind = "DEPENDS_ON"
	KindDependedOnBy  Kind = "DEPENDED_ON_BY"
	KindComposedOf    Kind = "COMPOSED_OF"
	KindComponentOf   Kind = "COMPONENT_OF"
)

var inverses = map[Kind]Kind{
	KindRelatesTo:    KindRelatesTo,
	KindIsA:          KindHasInstances,
	KindHasInstances: KindIsA,
	KindPartOf:       KindHasParts,
	KindHasParts:     KindPartOf,
	KindDependsOn:    KindDependedOnBy,
	KindDependedOnBy: KindDependsOn,
	KindComposedOf:   KindComponentOf,
	KindComponentOf:  KindComposedOf,
}

// Inverse returns the inverse kind and whether one is declared. Synthesizing
// an edge of a kind with a declared inverse always synthesizes the reverse
// edge too, atomically.
func (k Kind) Inverse() (Kind, bool) {
	inv, ok := inverses[k]
	return inv, ok
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	_, ok := inverses[k]
	return ok
}

// Kinds returns all declared relationship kinds.
func Kinds() []Kind {
	out := make([]Kind, 0, len(inverses))
	for k := range inverses {
		out = append(out, k)
	}
	return out
}
