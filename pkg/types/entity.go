package types

// EntityHandle is what the entity directory returns for a registered id:
// an ItemHandle, or an AgentHandle for agents.
type EntityHandle interface {
	EntityID() EntityID
	IsAgent() bool
}

// ItemHandle is a plain registered Item and its network address.
type ItemHandle struct {
	ID      EntityID `json:"id"`
	Address string   `json:"address"`
}

func (h ItemHandle) EntityID() EntityID { return h.ID }
func (ItemHandle) IsAgent() bool        { return false }

// AgentHandle is an Item that acts. Credential is the stored password hash.
type AgentHandle struct {
	ItemHandle
	Name              string `json:"name"`
	Credential        string `json:"-"`
	TemporaryPassword bool   `json:"temporaryPassword"`
}

func (AgentHandle) IsAgent() bool { return true }

// NameProperty is the property holding an Item's human-readable name.
const NameProperty = "Name"
