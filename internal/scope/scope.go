// Package scope decides which branches a principal can read and write.
package scope

import "tallerpos/backend/internal/domain"

// Scope is the branch visibility of one principal. Branch ID 0 means "all
// branches" when returned from ReadFilter.
type Scope interface {
	Unrestricted() bool
	// BranchID is the principal's own branch.
	BranchID() int64
	// ReadFilter returns the branch a list query must be restricted to.
	ReadFilter(requested int64) int64
	// WriteBranch returns the branch a new row must be written to.
	WriteBranch(requested int64) int64
	Permits(branchID int64) bool
}

func Resolve(actor domain.Actor) Scope {
	if actor.Role.Unrestricted() {
		return allBranches{home: actor.BranchID}
	}
	return singleBranch{id: actor.BranchID}
}

type allBranches struct {
	home int64
}

func (allBranches) Unrestricted() bool { return true }

func (a allBranches) BranchID() int64 { return a.home }

func (allBranches) ReadFilter(requested int64) int64 {
	if requested < 0 {
		return 0
	}
	return requested
}

func (a allBranches) WriteBranch(requested int64) int64 {
	if requested > 0 {
		return requested
	}
	return a.home
}

func (allBranches) Permits(int64) bool { return true }

type singleBranch struct {
	id int64
}

func (singleBranch) Unrestricted() bool { return false }

func (s singleBranch) BranchID() int64 { return s.id }

func (s singleBranch) ReadFilter(int64) int64 { return s.id }

func (s singleBranch) WriteBranch(int64) int64 { return s.id }

func (s singleBranch) Permits(branchID int64) bool { return s.id != 0 && branchID == s.id }
