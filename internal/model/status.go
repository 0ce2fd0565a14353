package model

// PushStatus is the semantic status of a redirect gateway notification.
type PushStatus string

const (
	PushSuccess   PushStatus = "success"
	PushPending   PushStatus = "pending"
	PushCancelled PushStatus = "cancelled"
	PushFailed    PushStatus = "failed"
	PushUnknown   PushStatus = "unknown"
)

// PushStatusFromCode maps the gateway's numeric status_code.
// Unrecognized codes map to PushUnknown.
func PushStatusFromCode(code string) PushStatus {
	switch code {
	case "2":
		return PushSuccess
	case "0":
		return PushPending
	case "-1":
		return PushCancelled
	case "-2":
		return PushFailed
	default:
		return PushUnknown
	}
}

func (s PushStatus) Rank() int {
	switch s {
	case PushSuccess, PushCancelled, PushFailed:
		return 2
	case PushPending:
		return 1
	default:
		return 0
	}
}

func (s PushStatus) Result() Result {
	switch s {
	case PushSuccess:
		return ResultPaid
	case PushCancelled, PushFailed:
		return ResultFailed
	default:
		return ResultPending
	}
}

// PullStatus is the order status reported by the REST gateway.
type PullStatus string

const (
	PullCreated     PullStatus = "CREATED"
	PullSaved       PullStatus = "SAVED"
	PullPayerAction PullStatus = "PAYER_ACTION_REQUIRED"
	PullApproved    PullStatus = "APPROVED"
	PullAuthorized  PullStatus = "AUTHORIZED"
	PullCaptured    PullStatus = "CAPTURED"
	PullCompleted   PullStatus = "COMPLETED"
	PullVoided      PullStatus = "VOIDED"
	PullNotFound    PullStatus = "NOT_FOUND"
)

// Rank follows CREATED -> APPROVED -> AUTHORIZED/CAPTURED -> COMPLETED.
// VOIDED is terminal alongside COMPLETED.
func (s PullStatus) Rank() int {
	switch s {
	case PullCreated, PullSaved, PullPayerAction:
		return 0
	case PullApproved:
		return 1
	case PullAuthorized, PullCaptured:
		return 2
	case PullCompleted, PullVoided:
		return 3
	default:
		return 0
	}
}

// Finalized reports statuses that must not trigger another authorize call.
func (s PullStatus) Finalized() bool {
	return s == PullCompleted || s == PullApproved
}

func (s PullStatus) Result() Result {
	switch s {
	case PullCompleted, PullAuthorized, PullCaptured:
		return ResultPaid
	case PullVoided:
		return ResultFailed
	case PullNotFound:
		return ResultNotFound
	default:
		return ResultPending
	}
}

// Result is the gateway-neutral status shown to the booking UI.
type Result string

const (
	ResultPending  Result = "PENDING"
	ResultPaid     Result = "PAID"
	ResultFailed   Result = "FAILED"
	ResultNotFound Result = "NOT_FOUND"
)
