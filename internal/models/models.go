package models

import "time"

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskCancelled  TaskStatus = "cancelled"
)

// ValidTaskStatuses enumerates the statuses a task may hold.
var ValidTaskStatuses = map[TaskStatus]struct{}{
	TaskPending:    {},
	TaskInProgress: {},
	TaskCompleted:  {},
	TaskCancelled:  {},
}

// TaskPriority orders tasks for planning views.
type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
	PriorityUrgent TaskPriority = "urgent"
)

// ValidTaskPriorities enumerates the priorities a task may hold.
var ValidTaskPriorities = map[TaskPriority]struct{}{
	PriorityLow:    {},
	PriorityMedium: {},
	PriorityHigh:   {},
	PriorityUrgent: {},
}

// PriorityRank maps a priority to its sort rank, urgent first.
func PriorityRank(p TaskPriority) int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	default:
		return 3
	}
}

// Task is a unit of work inside a project. Dependencies hold the ids of
// tasks that must conceptually precede this one; every id must belong to
// the same project.
type Task struct {
	ID             int64        `json:"id"`
	ProjectID      int64        `json:"project_id"`
	Title          string       `json:"title"`
	Description    string       `json:"description"`
	AssignedTo     *int64       `json:"assigned_to,omitempty"`
	Status         TaskStatus   `json:"status"`
	Priority       TaskPriority `json:"priority"`
	DueDate        *time.Time   `json:"due_date,omitempty"`
	EstimatedHours *float64     `json:"estimated_hours,omitempty"`
	ActualHours    *float64     `json:"actual_hours,omitempty"`
	Dependencies   []int64      `json:"dependencies"`
	CreatedBy      int64        `json:"created_by"`
	CompletedAt    *time.Time   `json:"completed_at,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// TaskDetail is a task together with its resolved assignee and dependency
// tasks, as returned by single-task reads.
type TaskDetail struct {
	Task
	Assignee        *UserSummary `json:"assignee,omitempty"`
	DependencyTasks []Task       `json:"dependency_tasks"`
}

// TaskUpdate carries a partial task edit. Nil fields keep the stored value.
type TaskUpdate struct {
	Title          *string
	Description    *string
	AssignedTo     *int64
	Status         *TaskStatus
	Priority       *TaskPriority
	DueDate        *time.Time
	EstimatedHours *float64
	ActualHours    *float64
	Dependencies   *[]int64
}

// TaskFilter controls which tasks List returns.
type TaskFilter struct {
	ProjectID  *int64
	AssignedTo *int64
	Status     *TaskStatus
	Priority   *TaskPriority
	Overdue    bool
}

// ChangeOrderStatus is the approval state of a change order.
type ChangeOrderStatus string

const (
	ChangeOrderPending     ChangeOrderStatus = "pending"
	ChangeOrderApproved    ChangeOrderStatus = "approved"
	ChangeOrderRejected    ChangeOrderStatus = "rejected"
	ChangeOrderImplemented ChangeOrderStatus = "implemented"
)

// ChangeOrder is a tracked request to alter a project's scope, cost or
// timeline. Once it leaves pending only state-machine fields change.
type ChangeOrder struct {
	ID             int64             `json:"id"`
	ProjectID      int64             `json:"project_id"`
	Number         string            `json:"change_order_number"`
	Title          string            `json:"title"`
	Description    string            `json:"description"`
	Reason         string            `json:"reason,omitempty"`
	CostImpact     float64           `json:"cost_impact"`
	TimeImpactDays int               `json:"time_impact_days"`
	Status         ChangeOrderStatus `json:"status"`
	RequestedBy    int64             `json:"requested_by"`
	ApprovedBy     *int64            `json:"approved_by,omitempty"`
	RequestedAt    time.Time         `json:"requested_at"`
	ApprovedAt     *time.Time        `json:"approved_at,omitempty"`
	ImplementedAt  *time.Time        `json:"implemented_at,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// ChangeOrderUpdate carries a partial edit of a pending change order.
// Nil fields keep the stored value. Status never moves through an update;
// it only changes via the decision and implement operations.
type ChangeOrderUpdate struct {
	Title          *string
	Description    *string
	Reason         *string
	CostImpact     *float64
	TimeImpactDays *int
}

// ProjectStatus is the delivery state of a project.
type ProjectStatus string

const (
	ProjectPlanning   ProjectStatus = "planning"
	ProjectInProgress ProjectStatus = "in_progress"
	ProjectOnHold     ProjectStatus = "on_hold"
	ProjectCompleted  ProjectStatus = "completed"
	ProjectCancelled  ProjectStatus = "cancelled"
)

// ValidProjectStatuses enumerates the statuses a project may hold.
var ValidProjectStatuses = map[ProjectStatus]struct{}{
	ProjectPlanning:   {},
	ProjectInProgress: {},
	ProjectOnHold:     {},
	ProjectCompleted:  {},
	ProjectCancelled:  {},
}

// Terminal reports whether the project no longer accepts change activity.
func (s ProjectStatus) Terminal() bool {
	return s == ProjectCompleted || s == ProjectCancelled
}

// Project groups tasks and change orders. Budget and EstimatedEndDate are
// adjusted only through change-order approval.
type Project struct {
	ID               int64         `json:"id"`
	Name             string        `json:"name"`
	CreatedBy        int64         `json:"created_by"`
	ManagerID        *int64        `json:"manager_id,omitempty"`
	Budget           float64       `json:"budget"`
	EstimatedEndDate *time.Time    `json:"estimated_end_date,omitempty"`
	Status           ProjectStatus `json:"status"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// User is a member of the studio able to own projects and tasks.
type User struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserSummary is the short form embedded in task reads.
type UserSummary struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// PriorityBreakdown is the per-priority slice of task statistics.
type PriorityBreakdown struct {
	Priority  TaskPriority `json:"priority"`
	Total     int          `json:"total"`
	Completed int          `json:"completed"`
}

// AssigneeBreakdown is the per-assignee slice of task statistics.
// Unassigned tasks are reported with a nil assignee id.
type AssigneeBreakdown struct {
	AssigneeID   *int64 `json:"assignee_id,omitempty"`
	AssigneeName string `json:"assignee_name"`
	Total        int    `json:"total"`
	Completed    int    `json:"completed"`
}

// TaskStatistics aggregates the current task state of a project.
type TaskStatistics struct {
	Total          int                 `json:"total"`
	Completed      int                 `json:"completed"`
	InProgress     int                 `json:"in_progress"`
	Overdue        int                 `json:"overdue"`
	CompletionRate float64             `json:"completion_rate"`
	ByPriority     []PriorityBreakdown `json:"by_priority"`
	ByAssignee     []AssigneeBreakdown `json:"by_assignee"`
}

// ChangeOrderStatistics aggregates the change-order state of a project.
// Impact sums cover approved and implemented orders only.
type ChangeOrderStatistics struct {
	Total               int     `json:"total"`
	Pending             int     `json:"pending"`
	Approved            int     `json:"approved"`
	Rejected            int     `json:"rejected"`
	Implemented         int     `json:"implemented"`
	TotalCostImpact     float64 `json:"total_cost_impact"`
	TotalTimeImpactDays int     `json:"total_time_impact_days"`
	ApprovalRate        float64 `json:"approval_rate"`
}
