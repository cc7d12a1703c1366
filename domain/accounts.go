package domain

import (
	"fmt"
	"time"
)

// Account is the single local identity hosted by this node.
type Account struct {
	Id        int64
	Username  string
	Name      string
	CreatedAt time.Time
}

func (acc *Account) ToString() string {
	return fmt.Sprintf("\n\tId: %d \n\tUsername: %s \n\tName: %s \n\tCREATED_AT: %s)", acc.Id, acc.Username, acc.Name, acc.CreatedAt)
}
