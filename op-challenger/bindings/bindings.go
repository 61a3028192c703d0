// Package bindings hand-encodes the fixed, small contract call surface this
// agent needs. Generating a full abigen binding package is explicitly out
// of scope; instead each call is packed with go-ethereum/accounts/abi the
// same way abigen-generated bindings do it internally.
package bindings

import (
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/ethereum-optimism/op-challenger-agent/op-challenger/game/fault/types"
)

// CreateSelector is the 4-byte selector of create(uint8,bytes32,bytes).
var CreateSelector = [4]byte{0x31, 0x42, 0xe5, 0x5e}

var (
	uint8Ty, _   = abi.NewType("uint8", "", nil)
	uint256Ty, _ = abi.NewType("uint256", "", nil)
	bytes32Ty, _ = abi.NewType("bytes32", "", nil)
	bytesTy, _   = abi.NewType("bytes", "", nil)
	boolTy, _    = abi.NewType("bool", "", nil)

	addressTy, _ = abi.NewType("address", "", nil)

	createArgs     = abi.Arguments{{Type: uint8Ty}, {Type: bytes32Ty}, {Type: bytesTy}}
	attackArgs     = abi.Arguments{{Type: uint256Ty}, {Type: bytes32Ty}}
	defendArgs     = abi.Arguments{{Type: uint256Ty}, {Type: bytes32Ty}}
	stepArgs       = abi.Arguments{{Type: uint256Ty}, {Type: uint256Ty}, {Type: boolTy}, {Type: bytesTy}, {Type: bytesTy}}
	challengeArgs  = abi.Arguments{{Type: bytesTy}}
	uint256Pair    = abi.Arguments{{Type: uint256Ty}, {Type: uint256Ty}}
	claimDataQuery = abi.Arguments{{Type: uint256Ty}}
	challengesArgs = abi.Arguments{{Type: addressTy}}

	uint64Return  = abi.Arguments{{Type: abi.Type{T: abi.UintTy, Size: 64}}}
	addressReturn = abi.Arguments{{Type: addressTy}}
	bytes32Return = abi.Arguments{{Type: bytes32Ty}}
	uint256Return = abi.Arguments{{Type: uint256Ty}}

	claimDataTupleTy = mustTupleType([]abi.ArgumentMarshaling{
		{Name: "parentIndex", Type: "uint32"},
		{Name: "countered", Type: "bool"},
		{Name: "claim", Type: "bytes32"},
		{Name: "position", Type: "uint128"},
		{Name: "clock", Type: "uint128"},
	})
	claimDataArgs = abi.Arguments{{Type: claimDataTupleTy}}
)

func mustTupleType(components []abi.ArgumentMarshaling) abi.Type {
	t, err := abi.NewType("tuple", "", components)
	if err != nil {
		panic(err)
	}
	return t
}

func withSelector(selector [4]byte, packed []byte) []byte {
	out := make([]byte, 0, 4+len(packed))
	out = append(out, selector[:]...)
	return append(out, packed...)
}

// selectorOf computes a 4-byte function selector the same way abigen does,
// without depending on a generated binding package.
func selectorOf(signature string) [4]byte {
	var sel [4]byte
	copy(sel[:], crypto.Keccak256([]byte(signature))[:4])
	return sel
}

var (
	attackSelector        = selectorOf("attack(uint256,bytes32)")
	defendSelector        = selectorOf("defend(uint256,bytes32)")
	stepSelector          = selectorOf("step(uint256,uint256,bool,bytes,bytes)")
	challengeSelector     = selectorOf("challenge(bytes)")
	claimDataSelector     = selectorOf("claimData(uint256)")
	createdAtSelector     = selectorOf("createdAt()")
	challengesSelector    = selectorOf("challenges(address)")
	rootClaimSelector     = selectorOf("ROOT_CLAIM()")
	l2BlockNumberSelector = selectorOf("L2_BLOCK_NUMBER()")
)

// EncodeClaimDataCall packs the calldata for the view call claimData(uint256 index).
func EncodeClaimDataCall(index uint64) []byte {
	packed, _ := claimDataQuery.Pack(new(big.Int).SetUint64(index))
	return withSelector(claimDataSelector, packed)
}

// EncodeCreatedAtCall packs the calldata for the no-argument view call createdAt().
func EncodeCreatedAtCall() []byte {
	return withSelector(createdAtSelector, nil)
}

// DecodeCreatedAt unpacks a createdAt() return value (a uint64 timestamp).
func DecodeCreatedAt(data []byte) (uint64, error) {
	values, err := uint64Return.Unpack(data)
	if err != nil {
		return 0, fmt.Errorf("bindings: unpacking createdAt return: %w", err)
	}
	return values[0].(uint64), nil
}

// EncodeChallengesCall packs the calldata for the view call challenges(address caller).
func EncodeChallengesCall(caller common.Address) []byte {
	packed, _ := challengesArgs.Pack(caller)
	return withSelector(challengesSelector, packed)
}

// DecodeChallengesResult unpacks a challenges(address) return value: the
// address that created the output-attestation game, zero if unset.
func DecodeChallengesResult(data []byte) (common.Address, error) {
	values, err := addressReturn.Unpack(data)
	if err != nil {
		return common.Address{}, fmt.Errorf("bindings: unpacking challenges return: %w", err)
	}
	return values[0].(common.Address), nil
}

// EncodeRootClaimCall packs the calldata for the no-argument view call ROOT_CLAIM().
func EncodeRootClaimCall() []byte {
	return withSelector(rootClaimSelector, nil)
}

// DecodeRootClaim unpacks a ROOT_CLAIM() return value.
func DecodeRootClaim(data []byte) (common.Hash, error) {
	values, err := bytes32Return.Unpack(data)
	if err != nil {
		return common.Hash{}, fmt.Errorf("bindings: unpacking ROOT_CLAIM return: %w", err)
	}
	return common.Hash(values[0].([32]byte)), nil
}

// EncodeL2BlockNumberCall packs the calldata for the no-argument view call
// L2_BLOCK_NUMBER().
func EncodeL2BlockNumberCall() []byte {
	return withSelector(l2BlockNumberSelector, nil)
}

// DecodeL2BlockNumber unpacks a L2_BLOCK_NUMBER() return value.
func DecodeL2BlockNumber(data []byte) (*big.Int, error) {
	values, err := uint256Return.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("bindings: unpacking L2_BLOCK_NUMBER return: %w", err)
	}
	return values[0].(*big.Int), nil
}

// EncodeCreate packs the calldata for
// create(uint8 gameType, bytes32 rootClaim, bytes extraData).
func EncodeCreate(gameType uint8, rootClaim common.Hash, extraData []byte) ([]byte, error) {
	packed, err := createArgs.Pack(gameType, [32]byte(rootClaim), extraData)
	if err != nil {
		return nil, fmt.Errorf("bindings: packing create calldata: %w", err)
	}
	return withSelector(CreateSelector, packed), nil
}

// EncodeAttack packs the calldata for attack(uint256 parentIndex, bytes32 pivot).
func EncodeAttack(parentIndex *big.Int, pivot common.Hash) ([]byte, error) {
	packed, err := attackArgs.Pack(parentIndex, [32]byte(pivot))
	if err != nil {
		return nil, fmt.Errorf("bindings: packing attack calldata: %w", err)
	}
	return withSelector(attackSelector, packed), nil
}

// EncodeDefend packs the calldata for defend(uint256 parentIndex, bytes32 pivot).
func EncodeDefend(parentIndex *big.Int, pivot common.Hash) ([]byte, error) {
	packed, err := defendArgs.Pack(parentIndex, [32]byte(pivot))
	if err != nil {
		return nil, fmt.Errorf("bindings: packing defend calldata: %w", err)
	}
	return withSelector(defendSelector, packed), nil
}

// EncodeStep packs the calldata for
// step(uint256 stateIndex, uint256 claimIndex, bool isAttack, bytes stateData, bytes proof).
func EncodeStep(stateIndex, claimIndex *big.Int, isAttack bool, stateData, proof []byte) ([]byte, error) {
	packed, err := stepArgs.Pack(stateIndex, claimIndex, isAttack, stateData, proof)
	if err != nil {
		return nil, fmt.Errorf("bindings: packing step calldata: %w", err)
	}
	return withSelector(stepSelector, packed), nil
}

// EncodeChallenge packs the calldata for challenge(bytes signature).
func EncodeChallenge(signature []byte) ([]byte, error) {
	packed, err := challengeArgs.Pack(signature)
	if err != nil {
		return nil, fmt.Errorf("bindings: packing challenge calldata: %w", err)
	}
	return withSelector(challengeSelector, packed), nil
}

// EncodeUint256 ABI-encodes a single uint256 with no function selector:
// the extraData payload of a synthesized create() call.
func EncodeUint256(a *big.Int) ([]byte, error) {
	packed, err := uint256Return.Pack(a)
	if err != nil {
		return nil, fmt.Errorf("bindings: packing uint256: %w", err)
	}
	return packed, nil
}

// EncodeUint256Pair ABI-encodes two uint256 values with no function
// selector: the (trace_index, trace_byte) preimage hashed to produce a
// claim, and the pre/post state data passed to step().
func EncodeUint256Pair(a, b *big.Int) ([]byte, error) {
	packed, err := uint256Pair.Pack(a, b)
	if err != nil {
		return nil, fmt.Errorf("bindings: packing uint256 pair: %w", err)
	}
	return packed, nil
}

// IsPendingCreate reports whether input is a call to create() whose
// gameType and rootClaim arguments match an already-pending call, so a
// duplicate create() is never submitted: [4:36] is the uint256-wrapped
// gameType, [36:68] is rootClaim.
func IsPendingCreate(input []byte, gameType uint8, rootClaim common.Hash) bool {
	if len(input) < 68 {
		return false
	}
	if input[0] != CreateSelector[0] || input[1] != CreateSelector[1] || input[2] != CreateSelector[2] || input[3] != CreateSelector[3] {
		return false
	}
	wantGameType := new(big.Int).SetUint64(uint64(gameType))
	gotGameType := new(big.Int).SetBytes(input[4:36])
	if wantGameType.Cmp(gotGameType) != 0 {
		return false
	}
	return common.BytesToHash(input[36:68]) == rootClaim
}

// DecodeClock splits a packed 128-bit on-chain clock value into its two
// 64-bit halves: duration remaining in the high bits, the timestamp the
// clock was last set at in the low bits.
func DecodeClock(packed *big.Int) types.Clock {
	if packed == nil {
		return types.Clock{}
	}
	mask64 := new(big.Int).SetUint64(math.MaxUint64)
	timestamp := new(big.Int).And(packed, mask64)
	duration := new(big.Int).Rsh(packed, 64)
	return types.Clock{
		Duration:  duration.Uint64(),
		Timestamp: timestamp.Uint64(),
	}
}

// DecodedClaimData mirrors the claimData(uint256) return tuple:
// (parentIndex uint32, countered bool, claim bytes32, position uint128, clock uint128).
type DecodedClaimData struct {
	ParentIndex uint32
	Countered   bool
	Claim       common.Hash
	Position    *big.Int
	Clock       types.Clock
}

// DecodeClaimData unpacks the return value of an eth_call to
// claimData(uint256).
func DecodeClaimData(data []byte) (DecodedClaimData, error) {
	values, err := claimDataArgs.Unpack(data)
	if err != nil {
		return DecodedClaimData{}, fmt.Errorf("bindings: unpacking claimData return: %w", err)
	}
	if len(values) != 1 {
		return DecodedClaimData{}, fmt.Errorf("bindings: expected 1 return tuple, got %d", len(values))
	}
	tuple, ok := values[0].(struct {
		ParentIndex uint32   `json:"parentIndex"`
		Countered   bool     `json:"countered"`
		Claim       [32]byte `json:"claim"`
		Position    *big.Int `json:"position"`
		Clock       *big.Int `json:"clock"`
	})
	if !ok {
		return DecodedClaimData{}, fmt.Errorf("bindings: unexpected claimData tuple shape %T", values[0])
	}
	return DecodedClaimData{
		ParentIndex: tuple.ParentIndex,
		Countered:   tuple.Countered,
		Claim:       common.Hash(tuple.Claim),
		Position:    tuple.Position,
		Clock:       DecodeClock(tuple.Clock),
	}, nil
}
