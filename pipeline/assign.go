package pipeline

import (
	"fmt"

	"gorm.io/gorm"

	"leadflow/models"
)

// NextOwner picks the owner for a newly created lead by round-robin over
// active agents: locate the most recently created lead that has an owner,
// find that owner in the stable agent ordering, and pick the next one
// (wrapping). With no prior assignment, or a prior owner that is no longer
// active, the first agent wins. A nil agent with nil error means there are no
// eligible agents and the lead should stay unassigned.
//
// The cursor is derived from persisted state on every call, so assignment
// survives restarts and stays deterministic for a given agent list and last
// assignment.
func NextOwner(db *gorm.DB) (*models.User, error) {
	var agents []models.User
	if err := db.Where("role = ? AND is_active = ?", models.RoleAgent, true).
		Order("id").Find(&agents).Error; err != nil {
		return nil, fmt.Errorf("list active agents: %w", err)
	}
	if len(agents) == 0 {
		return nil, nil
	}

	var last models.Lead
	err := db.Where("assigned_to_id IS NOT NULL").
		Order("created_at DESC, id DESC").First(&last).Error
	if err == gorm.ErrRecordNotFound {
		return &agents[0], nil
	}
	if err != nil {
		return nil, fmt.Errorf("find last assignment: %w", err)
	}

	for i := range agents {
		if agents[i].ID == *last.AssignedToID {
			return &agents[(i+1)%len(agents)], nil
		}
	}

	// Previous owner was deactivated or removed
	return &agents[0], nil
}
