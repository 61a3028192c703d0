package types

import (
	"errors"
	"math"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrClaimNotFound is returned when a claim does not exist in the game state.
	ErrClaimNotFound = errors.New("claim not found in game state")

	// ErrGameDepthReached is returned when a claim is already at the maximum
	// depth of the game tree and cannot be moved against.
	ErrGameDepthReached = errors.New("game depth reached")

	// ErrInvalidTraceIndex is returned when a position's trace index falls
	// outside the bounds of the local execution trace.
	ErrInvalidTraceIndex = errors.New("invalid trace index")

	// ErrNoStepState is returned when the ancestor claim that should supply a
	// step's pre/post state cannot be found in the local game state. The
	// watcher logs and skips; a future claim may resolve it.
	ErrNoStepState = errors.New("no local claim commits to the required step state")
)

// NoParent is the sentinel parent_index value used by the root claim: a
// claim array index can never legitimately be 2^32-1.
const NoParent uint32 = math.MaxUint32

// Claim is the 32-byte commitment placed at a Position in a dispute game.
type Claim = common.Hash

// Clock is the chess-clock-style remaining time budget packed alongside a
// claim: duration remaining, and the wall time at which it was last set.
type Clock struct {
	Duration  uint64
	Timestamp uint64
}

// ClaimData is a single row of a game's on-chain claim array.
type ClaimData struct {
	// ParentIndex indexes into the same claim array. NoParent marks the root.
	ParentIndex uint32
	// Countered is true once some child claim contradicts this one.
	Countered bool
	// Claim is the committed hash at Position.
	Claim    Claim
	Position Position
	Clock    Clock
}

// IsRoot reports whether this row is the root claim of the game.
func (c ClaimData) IsRoot() bool {
	return c.ParentIndex == NoParent
}

// GameType discriminates the dispute-game contracts a DisputeGameCreated
// event may reference, decoded from the low byte of a 32-byte event topic.
type GameType uint8

const (
	GameTypeFault             GameType = 0
	GameTypeValidity          GameType = 1
	GameTypeOutputAttestation GameType = 2
)

// GameTypeFromByte decodes the low byte of the gameType topic. Unknown
// values are surfaced to the caller, which logs and continues per the
// DisputeGameCreated handling rules.
func GameTypeFromByte(b byte) (GameType, error) {
	switch GameType(b) {
	case GameTypeFault, GameTypeValidity, GameTypeOutputAttestation:
		return GameType(b), nil
	default:
		return 0, errors.New("unknown game type")
	}
}

func (t GameType) String() string {
	switch t {
	case GameTypeFault:
		return "Fault"
	case GameTypeValidity:
		return "Validity"
	case GameTypeOutputAttestation:
		return "OutputAttestation"
	default:
		return "Unknown"
	}
}

// ResponseKind discriminates the shape of a Response.
type ResponseKind uint8

const (
	ResponseDoNothing ResponseKind = iota
	ResponseMove
	ResponseStep
)

// SecondaryMove is the optional counter made against a claim's grandparent
// alongside a primary move against its parent.
type SecondaryMove struct {
	ParentIndex  uint32
	CounterClaim Claim
}

// MoveResponse attacks or defends the claim at ParentIndex.
type MoveResponse struct {
	IsAttack     bool
	CounterClaim Claim
	// Secondary is non-nil when the grandparent is also contested.
	Secondary *SecondaryMove
}

// StepResponse executes a VM step against ParentIndex at the leaf depth.
type StepResponse struct {
	StateIndex  uint32
	ParentIndex uint32
	IsAttack    bool
	StateData   []byte
	Proof       []byte
}

// Response is the action the fault game model takes for a given claim: do
// nothing, move (attack/defend, optionally with a secondary move against
// the grandparent), or step at the leaf depth. Move is non-nil only for
// ResponseMove and Step only for ResponseStep; both are nil for
// ResponseDoNothing.
type Response struct {
	Kind ResponseKind
	Move *MoveResponse
	Step *StepResponse
}

// DoNothingResponse is the response to a claim that requires no action.
func DoNothingResponse() Response {
	return Response{Kind: ResponseDoNothing}
}

// MoveTo builds a Move response.
func MoveTo(isAttack bool, counterClaim Claim, secondary *SecondaryMove) Response {
	return Response{
		Kind: ResponseMove,
		Move: &MoveResponse{IsAttack: isAttack, CounterClaim: counterClaim, Secondary: secondary},
	}
}

// StepTo builds a Step response.
func StepTo(stateIndex, parentIndex uint32, isAttack bool, stateData, proof []byte) Response {
	return Response{
		Kind: ResponseStep,
		Step: &StepResponse{
			StateIndex:  stateIndex,
			ParentIndex: parentIndex,
			IsAttack:    isAttack,
			StateData:   stateData,
			Proof:       proof,
		},
	}
}

// StepCallData is the calldata payload for the on-chain step() call.
type StepCallData struct {
	ClaimIndex uint64
	IsAttack   bool
	StateData  []byte
	Proof      []byte
}
