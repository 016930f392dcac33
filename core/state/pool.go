package state

import (
	"remitlend/crypto"
	"remitlend/native/pool"
)

var (
	poolStateKey     = []byte("pool/state")
	poolLenderPrefix = "pool/lender/"
)

type storedPool struct {
	TotalLiquidity      amount
	TotalBorrowed       amount
	TotalInterestEarned amount
	TotalInterestPaid   amount
	AccInterestPerShare amount
	BaseRateBps         uint32
	MaxUtilizationBps   uint32
	LoanManager         crypto.Address
	Asset               string
}

type storedLender struct {
	Lender             crypto.Address
	Principal          amount
	DepositTimestamp   uint64
	InterestCheckpoint amount
	UnclaimedInterest  amount
	ShareBps           uint32
}

func lenderKey(addr crypto.Address) []byte {
	return append([]byte(poolLenderPrefix), addr.Bytes()...)
}

// GetPool returns the pool singleton, nil before initialisation.
func (m *Manager) GetPool() (*pool.State, error) {
	var stored storedPool
	ok, err := m.KVGet(poolStateKey, &stored)
	if err != nil || !ok {
		return nil, err
	}
	var d amountDecoder
	out := &pool.State{
		TotalLiquidity:      d.amount(stored.TotalLiquidity),
		TotalBorrowed:       d.amount(stored.TotalBorrowed),
		TotalInterestEarned: d.amount(stored.TotalInterestEarned),
		TotalInterestPaid:   d.amount(stored.TotalInterestPaid),
		AccInterestPerShare: d.amount(stored.AccInterestPerShare),
		BaseRateBps:         stored.BaseRateBps,
		MaxUtilizationBps:   stored.MaxUtilizationBps,
		LoanManager:         stored.LoanManager,
		Asset:               stored.Asset,
	}
	return out, d.err
}

// PutPool stores the pool singleton.
func (m *Manager) PutPool(p *pool.State) error {
	return m.KVPut(poolStateKey, storedPool{
		TotalLiquidity:      encodeAmount(p.TotalLiquidity),
		TotalBorrowed:       encodeAmount(p.TotalBorrowed),
		TotalInterestEarned: encodeAmount(p.TotalInterestEarned),
		TotalInterestPaid:   encodeAmount(p.TotalInterestPaid),
		AccInterestPerShare: encodeAmount(p.AccInterestPerShare),
		BaseRateBps:         p.BaseRateBps,
		MaxUtilizationBps:   p.MaxUtilizationBps,
		LoanManager:         p.LoanManager,
		Asset:               p.Asset,
	})
}

// GetLender returns the lender's position, nil if none was ever opened.
func (m *Manager) GetLender(addr crypto.Address) (*pool.LenderPosition, error) {
	var stored storedLender
	ok, err := m.KVGet(lenderKey(addr), &stored)
	if err != nil || !ok {
		return nil, err
	}
	var d amountDecoder
	out := &pool.LenderPosition{
		Lender:             stored.Lender,
		Principal:          d.amount(stored.Principal),
		DepositTimestamp:   stored.DepositTimestamp,
		InterestCheckpoint: d.amount(stored.InterestCheckpoint),
		UnclaimedInterest:  d.amount(stored.UnclaimedInterest),
		ShareBps:           stored.ShareBps,
	}
	return out, d.err
}

// PutLender stores a lender position.
func (m *Manager) PutLender(p *pool.LenderPosition) error {
	return m.KVPut(lenderKey(p.Lender), storedLender{
		Lender:             p.Lender,
		Principal:          encodeAmount(p.Principal),
		DepositTimestamp:   p.DepositTimestamp,
		InterestCheckpoint: encodeAmount(p.InterestCheckpoint),
		UnclaimedInterest:  encodeAmount(p.UnclaimedInterest),
		ShareBps:           p.ShareBps,
	})
}
