package procurement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/odyssey-erp/odyssey-supply/internal/numbering"
	"github.com/odyssey-erp/odyssey-supply/internal/shared"
)

// CreateRequest files a new MPR with PENDING lines.
func (s *Service) CreateRequest(ctx context.Context, p shared.Principal, input CreateRequestInput) (RequestPurchase, error) {
	if err := p.Require(shared.RoleUser, shared.RoleAdmin); err != nil {
		return RequestPurchase{}, err
	}
	if err := shared.Validate(input); err != nil {
		return RequestPurchase{}, err
	}
	location, err := s.lookup.FindLocationByName(ctx, input.LocationName)
	if err != nil {
		return RequestPurchase{}, err
	}
	if err := s.checkRequestLines(ctx, input.Lines); err != nil {
		return RequestPurchase{}, err
	}

	req := RequestPurchase{
		UserID:       p.UserID,
		CreatedBy:    p.Username,
		LocationID:   location.ID,
		LocationName: location.Name,
		Status:       RequestPending,
		Remarks:      input.Remarks,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		code, err := numbering.Allocate(ctx, tx, numbering.RequestKey(location.Code),
			func(seq int64) string { return numbering.RequestCode(seq, location.Code) },
			tx.RequestCodeExists)
		if err != nil {
			return err
		}
		req.RequestCode = code
		id, err := tx.InsertRequest(ctx, req)
		if err != nil {
			return err
		}
		req.ID = id
		req.Items = make([]ItemRequest, 0, len(input.Lines))
		for _, line := range input.Lines {
			item := ItemRequest{
				RequestID:   id,
				UserID:      p.UserID,
				Name:        line.Name,
				Amount:      line.Amount,
				UseDuration: line.UseDuration,
				Status:      ItemPending,
			}
			itemID, err := tx.InsertItemRequest(ctx, item)
			if err != nil {
				return err
			}
			item.ID = itemID
			req.Items = append(req.Items, item)
		}
		return nil
	})
	if err != nil {
		return RequestPurchase{}, err
	}
	s.logger.Info("request purchase created", slog.String("code", req.RequestCode), slog.Int("lines", len(req.Items)))
	s.recordAudit(ctx, p, "request_purchase.create", shared.EntityRequestPurchase, req.ID, map[string]any{"code": req.RequestCode})
	return req, nil
}

// checkRequestLines rejects duplicate names (case-sensitive) and names unknown to master data.
func (s *Service) checkRequestLines(ctx context.Context, lines []RequestLineInput) error {
	seen := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		if _, dup := seen[line.Name]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateItem, line.Name)
		}
		seen[line.Name] = struct{}{}
		if _, err := s.lookup.FindItemByName(ctx, line.Name); err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return fmt.Errorf("%w: %q", ErrUnknownItem, line.Name)
			}
			return err
		}
	}
	return nil
}

// ApproveRequest moves a PENDING MPR to APPROVED. Lines are untouched.
func (s *Service) ApproveRequest(ctx context.Context, p shared.Principal, id int64) (RequestPurchase, error) {
	if err := p.Require(shared.Operators...); err != nil {
		return RequestPurchase{}, err
	}
	var req RequestPurchase
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		req, err = tx.GetRequestForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if req.Status != RequestPending {
			return fmt.Errorf("%w (%s)", ErrRequestNotPending, req.RequestCode)
		}
		req.Status = RequestApproved
		return tx.UpdateRequest(ctx, req.ID, req.Status, req.Remarks)
	})
	if err != nil {
		return RequestPurchase{}, err
	}
	s.logger.Info("request purchase approved", slog.String("code", req.RequestCode))
	s.recordAudit(ctx, p, "request_purchase.approve", shared.EntityRequestPurchase, req.ID, map[string]any{"code": req.RequestCode})
	s.publish(ctx, p, shared.EntityRequestPurchase, req.ID, req.RequestCode, string(req.Status))
	return req, nil
}

// RejectRequest marks the MPR REJECTED and resets its open lines to PENDING.
func (s *Service) RejectRequest(ctx context.Context, p shared.Principal, code string) (RequestPurchase, error) {
	if err := p.Require(shared.Operators...); err != nil {
		return RequestPurchase{}, err
	}
	var req RequestPurchase
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		req, err = tx.GetRequestByCodeForUpdate(ctx, code)
		if err != nil {
			return err
		}
		if req.Status == RequestRejected {
			return fmt.Errorf("%w (%s)", ErrRequestRejected, code)
		}
		refs, err := tx.CountRequestReferences(ctx, req.ID)
		if err != nil {
			return err
		}
		if refs > 0 {
			return fmt.Errorf("%w (%s)", ErrRequestReferenced, code)
		}
		req.Status = RequestRejected
		if err := tx.UpdateRequest(ctx, req.ID, req.Status, req.Remarks); err != nil {
			return err
		}
		if _, err := tx.SetOpenItemStatuses(ctx, req.ID, ItemPending); err != nil {
			return err
		}
		for i := range req.Items {
			if req.Items[i].Status != ItemCompleted {
				req.Items[i].Status = ItemPending
			}
		}
		return nil
	})
	if err != nil {
		return RequestPurchase{}, err
	}
	s.logger.Info("request purchase rejected", slog.String("code", req.RequestCode))
	s.recordAudit(ctx, p, "request_purchase.reject", shared.EntityRequestPurchase, req.ID, map[string]any{"code": req.RequestCode})
	s.publish(ctx, p, shared.EntityRequestPurchase, req.ID, req.RequestCode, string(req.Status))
	return req, nil
}

// UpdateRequest lets the owner edit a PENDING MPR.
func (s *Service) UpdateRequest(ctx context.Context, p shared.Principal, id int64, input UpdateRequestInput) (RequestPurchase, error) {
	if err := shared.Validate(input); err != nil {
		return RequestPurchase{}, err
	}
	current, err := s.repo.GetRequest(ctx, id)
	if err != nil {
		return RequestPurchase{}, err
	}
	if err := checkRequestEditable(p, current); err != nil {
		return RequestPurchase{}, err
	}
	existing := make(map[int64]ItemRequest, len(current.Items))
	for _, item := range current.Items {
		existing[item.ID] = item
	}
	for _, line := range input.Lines {
		if line.ID == nil {
			continue
		}
		if _, ok := existing[*line.ID]; !ok {
			return RequestPurchase{}, fmt.Errorf("%w: id %d in %s", ErrItemRequestNotFound, *line.ID, current.RequestCode)
		}
	}
	if err := s.checkRequestLines(ctx, mergedLines(current.Items, input.Lines)); err != nil {
		return RequestPurchase{}, err
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := tx.GetRequestForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := checkRequestEditable(p, locked); err != nil {
			return err
		}
		for _, line := range input.Lines {
			if line.ID != nil {
				item := existing[*line.ID]
				item.Name, item.Amount, item.UseDuration = line.Name, line.Amount, line.UseDuration
				if err := tx.UpdateItemRequest(ctx, item); err != nil {
					return err
				}
				continue
			}
			if _, err := tx.InsertItemRequest(ctx, ItemRequest{
				RequestID:   id,
				UserID:      p.UserID,
				Name:        line.Name,
				Amount:      line.Amount,
				UseDuration: line.UseDuration,
				Status:      ItemPending,
			}); err != nil {
				return err
			}
		}
		if input.Remarks != nil {
			return tx.UpdateRequest(ctx, id, locked.Status, *input.Remarks)
		}
		return nil
	})
	if err != nil {
		return RequestPurchase{}, err
	}
	s.recordAudit(ctx, p, "request_purchase.update", shared.EntityRequestPurchase, id, map[string]any{"code": current.RequestCode, "lines": len(input.Lines)})
	return s.repo.GetRequest(ctx, id)
}

func checkRequestEditable(p shared.Principal, req RequestPurchase) error {
	if req.UserID != p.UserID {
		return ErrRequestNotOwner
	}
	if req.Status == RequestApproved || req.Status == RequestRejected {
		return fmt.Errorf("%w (%s is %s)", ErrRequestLocked, req.RequestCode, req.Status)
	}
	return nil
}

// mergedLines returns the line set the request will hold after applying updates.
func mergedLines(items []ItemRequest, updates []RequestLineInput) []RequestLineInput {
	byID := make(map[int64]RequestLineInput, len(updates))
	var added []RequestLineInput
	for _, u := range updates {
		if u.ID != nil {
			byID[*u.ID] = u
		} else {
			added = append(added, u)
		}
	}
	out := make([]RequestLineInput, 0, len(items)+len(added))
	for _, item := range items {
		if u, ok := byID[item.ID]; ok {
			out = append(out, u)
			continue
		}
		out = append(out, RequestLineInput{Name: item.Name, Amount: item.Amount, UseDuration: item.UseDuration})
	}
	return append(out, added...)
}

// CompleteRequest moves every open line of an APPROVED MPR to COMPLETED and reports how
// many lines changed.
func (s *Service) CompleteRequest(ctx context.Context, p shared.Principal, code string) (int64, error) {
	if err := p.Require(shared.Operators...); err != nil {
		return 0, err
	}
	var (
		req     RequestPurchase
		changed int64
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		req, err = tx.GetRequestByCodeForUpdate(ctx, code)
		if err != nil {
			return err
		}
		if req.Status != RequestApproved {
			return fmt.Errorf("%w (%s is %s)", ErrRequestNotApproved, code, req.Status)
		}
		changed, err = tx.SetOpenItemStatuses(ctx, req.ID, ItemCompleted)
		return err
	})
	if err != nil {
		return 0, err
	}
	s.recordAudit(ctx, p, "request_purchase.complete", shared.EntityRequestPurchase, req.ID, map[string]any{"code": code, "lines": changed})
	return changed, nil
}

// DeleteRequest removes a PENDING MPR that no purchase or delivery order references.
func (s *Service) DeleteRequest(ctx context.Context, p shared.Principal, id int64) error {
	if err := p.Require(shared.Operators...); err != nil {
		return err
	}
	var code string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		req, err := tx.GetRequestForUpdate(ctx, id)
		if err != nil {
			return err
		}
		code = req.RequestCode
		if req.Status != RequestPending {
			return fmt.Errorf("%w (%s is %s)", ErrRequestUndeletable, code, req.Status)
		}
		refs, err := tx.CountRequestReferences(ctx, id)
		if err != nil {
			return err
		}
		if refs > 0 {
			return fmt.Errorf("%w (%s is referenced)", ErrRequestUndeletable, code)
		}
		return tx.DeleteRequest(ctx, id)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, p, "request_purchase.delete", shared.EntityRequestPurchase, id, map[string]any{"code": code})
	return nil
}

// GetRequest returns one MPR with its lines.
func (s *Service) GetRequest(ctx context.Context, p shared.Principal, id int64) (RequestPurchase, error) {
	if err := p.Require(shared.RoleUser, shared.RoleStaff, shared.RoleAdmin); err != nil {
		return RequestPurchase{}, err
	}
	req, err := s.repo.GetRequest(ctx, id)
	if err != nil {
		return RequestPurchase{}, err
	}
	if p.Role == shared.RoleUser && req.UserID != p.UserID {
		return RequestPurchase{}, ErrRequestNotOwner
	}
	return req, nil
}

// ListRequests lists MPRs. Plain users only see their own.
func (s *Service) ListRequests(ctx context.Context, p shared.Principal, f RequestFilter) ([]RequestPurchase, shared.Pagination, error) {
	if err := p.Require(shared.RoleUser, shared.RoleStaff, shared.RoleAdmin); err != nil {
		return nil, shared.Pagination{}, err
	}
	if p.Role == shared.RoleUser {
		f.OwnerID = p.UserID
	}
	f.Page = f.Page.Normalize()
	items, total, err := s.repo.ListRequests(ctx, f)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	out, page := listResult(items, total, f.Page)
	return out, page, nil
}
