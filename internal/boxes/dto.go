package boxes

import "time"

// CreateBoxRequest is the JSON body for creating a box.
type CreateBoxRequest struct {
	Code        string           `json:"code,omitempty" validate:"omitempty,max=64"`
	Description string           `json:"description,omitempty" validate:"omitempty,max=500"`
	Items       []ItemRequest    `json:"items,omitempty" validate:"omitempty,dive"`
}

// ItemRequest is one product line in a request body.
type ItemRequest struct {
	ProductCode string  `json:"product_code" validate:"required,max=64"`
	ProductName string  `json:"product_name,omitempty" validate:"omitempty,max=200"`
	Amount      float64 `json:"amount" validate:"required,gt=0"`
}

// TransitionRequest is the JSON body for requesting a state transition.
type TransitionRequest struct {
	Target      string `json:"target" validate:"required,max=32"`
	Code        string `json:"code,omitempty" validate:"omitempty,max=64"`
	Location    string `json:"location,omitempty" validate:"omitempty,max=200"`
	Description string `json:"description,omitempty" validate:"omitempty,max=500"`
}

// BoxResponse is the JSON representation of a box.
type BoxResponse struct {
	ID          int64               `json:"id"`
	Code        string              `json:"code,omitempty"`
	State       string              `json:"state"`
	Location    string              `json:"location,omitempty"`
	Description string              `json:"description,omitempty"`
	Version     int64               `json:"version"`
	Items       []ItemResponse      `json:"items,omitempty"`
	StateLog    []StateLogResponse  `json:"state_log,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// ItemResponse is the JSON representation of a box item.
type ItemResponse struct {
	ID          int64   `json:"id"`
	ProductCode string  `json:"product_code"`
	ProductName string  `json:"product_name,omitempty"`
	Amount      float64 `json:"amount"`
}

// StateLogResponse is the JSON representation of one state log entry.
type StateLogResponse struct {
	State string    `json:"state"`
	At    time.Time `json:"at"`
	Actor string    `json:"actor"`
	Note  string    `json:"note,omitempty"`
}

func toBoxResponse(box Box) BoxResponse {
	resp := BoxResponse{
		ID:          box.ID,
		Code:        box.Code,
		State:       string(box.State),
		Location:    box.Location,
		Description: box.Description,
		Version:     box.Version,
		CreatedAt:   box.CreatedAt,
		UpdatedAt:   box.UpdatedAt,
	}
	for _, item := range box.Items {
		resp.Items = append(resp.Items, ItemResponse{
			ID:          item.ID,
			ProductCode: item.ProductCode,
			ProductName: item.ProductName,
			Amount:      item.Amount,
		})
	}
	for _, entry := range box.StateLog {
		resp.StateLog = append(resp.StateLog, StateLogResponse{
			State: string(entry.State),
			At:    entry.At,
			Actor: entry.Actor,
			Note:  entry.Note,
		})
	}
	return resp
}
