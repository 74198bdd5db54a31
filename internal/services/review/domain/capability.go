package domain

// Global role names supplied by the identity collaborator.
const (
	// RoleDrafting marks procurement officers who author and submit
	// section content.
	RoleDrafting = "procurement-officer"
	// RoleCommittee marks review committee members who verify and return
	// submitted sections.
	RoleCommittee = "review-committee"
)

// Actor is the resolved caller identity for one request: the user id, the
// coarse role flags supplied by the identity collaborator, and any transient
// structure-edit grants minted by the drafting owner for this request.
// Structure grants are request-scoped and never persisted.
type Actor struct {
	UserID    string
	Drafting  bool
	Committee bool
	// StructureSections lists sections the actor may reshape (add or
	// remove table rows and columns) this request regardless of
	// assignment.
	StructureSections []SectionID
}

// hasStructureGrant reports whether the actor carries a structure-edit grant
// for the section.
func (a Actor) hasStructureGrant(section SectionID) bool {
	for _, granted := range a.StructureSections {
		if granted == section {
			return true
		}
	}
	return false
}

// SectionCapabilities is the capability set for one (actor, evaluation,
// section) triple.
type SectionCapabilities struct {
	CanEdit   bool
	CanSubmit bool
	CanVerify bool
	CanReturn bool
	// CanEditStructure permits table-shape edits via a transient grant.
	CanEditStructure bool
	// OwnEntryOnly scopes section C edits to the actor's own evaluator
	// entry when multiple evaluators share the section.
	OwnEntryOnly bool
}

// ResolveSectionCapabilities computes the capability set for the actor on
// one section. It is a pure function of its inputs and is re-evaluated on
// every operation; assignments may change between requests.
func ResolveSectionCapabilities(actor Actor, evaluation Evaluation, section SectionID) SectionCapabilities {
	caps := SectionCapabilities{}

	// Committee capability is global: any section of any evaluation.
	if actor.Committee {
		caps.CanVerify = true
		caps.CanReturn = true
	}

	if actor.Drafting {
		assignment, assigned := ActiveAssignmentFor(evaluation.Assignments, actor.UserID)
		switch {
		case assigned && assignment.Covers(section):
			caps.CanEdit = true
			caps.CanSubmit = true
		case len(evaluation.Assignments) == 0 && actor.UserID != "" && actor.UserID == evaluation.CreatedBy:
			// Fallback for evaluations created before per-section
			// assignment existed: the drafting owner edits everything.
			caps.CanEdit = true
			caps.CanSubmit = true
		}

		if actor.hasStructureGrant(section) {
			caps.CanEditStructure = true
		}
	}

	// Section C with multiple active evaluators: each edits only their own
	// entry, never the whole payload.
	if section == SectionC && caps.CanEdit {
		if len(ActiveAssigneesFor(evaluation.Assignments, SectionC)) > 1 {
			caps.OwnEntryOnly = true
		}
	}

	return caps
}

// CanManageAssignments reports whether the actor may create or remove
// assignments on the evaluation. Only the drafting owner coordinates
// assignments.
func CanManageAssignments(actor Actor, evaluation Evaluation) bool {
	return actor.Drafting && actor.UserID != "" && actor.UserID == evaluation.CreatedBy
}
