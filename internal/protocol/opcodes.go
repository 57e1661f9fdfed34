package protocol

// Client → server opcodes.
const (
	C_HELLO            byte = 1
	C_READY            byte = 2
	C_ROTATION         byte = 3
	C_PROJECTILE_FIRED byte = 4
)

// Server → client opcodes.
const (
	S_REJECT              byte = 64
	S_SET_GAME_STATE      byte = 65
	S_SET_GAME_CONFIG     byte = 66
	S_CLIENT_JOINED       byte = 67
	S_INHABITANT_ROTATION byte = 68
	S_PROJECTILE_FIRED    byte = 69
	S_NO_CAPACITY         byte = 70
)

// OpcodeName returns a readable name for logging.
func OpcodeName(op byte) string {
	switch op {
	case C_HELLO:
		return "Hello"
	case C_READY:
		return "Ready"
	case C_ROTATION:
		return "Rotation"
	case C_PROJECTILE_FIRED:
		return "ProjectileFired"
	case S_REJECT:
		return "Reject"
	case S_SET_GAME_STATE:
		return "SetGameState"
	case S_SET_GAME_CONFIG:
		return "SetGameConfig"
	case S_CLIENT_JOINED:
		return "ClientJoined"
	case S_INHABITANT_ROTATION:
		return "InhabitantRotation"
	case S_PROJECTILE_FIRED:
		return "ProjectileFired(relay)"
	case S_NO_CAPACITY:
		return "NoCapacity"
	default:
		return "Unknown"
	}
}
