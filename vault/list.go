package vault

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Se7en-Seas/boring-vault-go/boringvault"
	"github.com/Se7en-Seas/boring-vault-go/pubkey"
)

const (
	// defaultListCount is how many trailing nonces WithdrawRequests
	// inspects when the caller does not say.
	defaultListCount = 7

	// defaultListConcurrency bounds the parallel account reads of one
	// listing.
	defaultListConcurrency = 4

	// maxListSpan caps the nonce range a single listing will walk.
	maxListSpan = 1 << 16
)

// ListOptions tunes WithdrawRequests.
type ListOptions struct {
	// VaultID, when non-nil, drops requests targeting other vaults.
	VaultID *uint64

	// MaxCount bounds how many trailing nonces are inspected.  Zero
	// selects defaultListCount; a negative count walks the owner's full
	// nonce history.
	MaxCount int

	// Concurrency bounds the parallel account reads.  Non-positive
	// selects defaultListConcurrency.
	Concurrency int
}

// WithdrawRequests lists the owner's withdraw requests in ascending
// nonce order.
//
// An owner who has never queued a request yields an empty listing, as do
// requests that have since been fulfilled or cancelled.  Reads across
// the nonce window run concurrently and fail independently: a failed
// nonce is logged and dropped, and the listing errors only when every
// read failed.
func (c *Client) WithdrawRequests(ctx context.Context, owner pubkey.Key, opts ListOptions) ([]RequestInfo, error) {
	state, err := c.UserWithdrawState(ctx, owner)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, nil
	}

	first, last := nonceWindow(state.LastNonce, opts.MaxCount)
	span := last - first + 1
	if span > maxListSpan {
		return nil, fmt.Errorf("nonce range %d exceeds the %d listing "+
			"cap; pass a MaxCount", span, maxListSpan)
	}

	workers := opts.Concurrency
	if workers <= 0 {
		workers = defaultListConcurrency
	}
	if uint64(workers) > span {
		workers = int(span)
	}

	// One consistent instant for every status in the listing.
	now := c.clk.Now()

	type result struct {
		info *RequestInfo
		err  error
	}
	results := make([]result, span)

	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			nonce := first + uint64(i)
			info, err := c.lookupRequest(ctx, owner, nonce, now)
			results[i] = result{info: info, err: err}
		}(i)
	}
	wg.Wait()

	var (
		infos    []RequestInfo
		failures int
		firstErr error
	)
	for i, res := range results {
		if res.err != nil {
			failures++
			if firstErr == nil {
				firstErr = res.err
			}
			log.Warnf("Skipping withdraw request nonce %d for %v: %v",
				first+uint64(i), owner, res.err)
			continue
		}
		if res.info == nil {
			// Fulfilled or cancelled.
			continue
		}
		if opts.VaultID != nil && res.info.Request.VaultID != *opts.VaultID {
			continue
		}
		infos = append(infos, *res.info)
	}
	if failures == len(results) && failures > 0 {
		return nil, fmt.Errorf("all %d withdraw request reads failed: %w",
			failures, firstErr)
	}
	return infos, nil
}

// ActiveWithdrawStatuses lists the owner's withdraw requests that can
// still be acted on, dropping expired ones.
func (c *Client) ActiveWithdrawStatuses(ctx context.Context, owner pubkey.Key, opts ListOptions) ([]RequestInfo, error) {
	infos, err := c.WithdrawRequests(ctx, owner, opts)
	if err != nil {
		return nil, err
	}
	active := infos[:0]
	for _, info := range infos {
		if info.Status == StatusExpired {
			continue
		}
		active = append(active, info)
	}
	return active, nil
}

// nonceWindow returns the inclusive nonce range a listing inspects.
// maxCount follows ListOptions semantics.
func nonceWindow(lastNonce uint64, maxCount int) (first, last uint64) {
	if maxCount == 0 {
		maxCount = defaultListCount
	}
	if maxCount > 0 && uint64(maxCount) <= lastNonce {
		first = lastNonce - uint64(maxCount) + 1
	}
	return first, lastNonce
}

// lookupRequest derives, reads, and decodes one request account.  A nil
// info with a nil error means the account does not exist.
func (c *Client) lookupRequest(ctx context.Context, owner pubkey.Key, nonce uint64, now time.Time) (*RequestInfo, error) {
	addr, _, err := boringvault.WithdrawRequestAddress(c.deriver, c.cfg.QueueProgram, owner, nonce)
	if err != nil {
		return nil, err
	}
	acct, err := c.readAccount(ctx, addr)
	if err != nil || acct == nil {
		return nil, err
	}
	req, err := boringvault.DecodeWithdrawRequest(addr, acct.Data)
	if err != nil {
		return nil, err
	}
	return newRequestInfo(addr, req, now), nil
}
