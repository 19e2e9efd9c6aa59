package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/nurpe/agro-contracts/internal/excel"
	"github.com/nurpe/agro-contracts/internal/model"
	"github.com/nurpe/agro-contracts/internal/pdf"
	"github.com/nurpe/agro-contracts/internal/repository"
)

// DocumentService renders contracts for download. Access rules are those of ContractService.
type DocumentService struct {
	contracts *ContractService
	users     *repository.UserRepository
	pdf       *pdf.Generator
	excel     *excel.Generator
}

func NewDocumentService(contracts *ContractService, users *repository.UserRepository, pdfGen *pdf.Generator, excelGen *excel.Generator) *DocumentService {
	return &DocumentService{
		contracts: contracts,
		users:     users,
		pdf:       pdfGen,
		excel:     excelGen,
	}
}

type Document struct {
	Filename    string
	ContentType string
	Body        []byte
}

func (s *DocumentService) ContractPDF(ctx context.Context, principal model.Principal, id uuid.UUID) (*Document, error) {
	view, err := s.contracts.Get(ctx, principal, id)
	if err != nil {
		return nil, err
	}
	body, err := s.pdf.Generate(*view)
	if err != nil {
		return nil, err
	}
	return &Document{
		Filename:    "contract-" + view.ContractNumber + ".pdf",
		ContentType: "application/pdf",
		Body:        body,
	}, nil
}

func (s *DocumentService) Register(ctx context.Context, principal model.Principal) (*Document, error) {
	views, err := s.contracts.ListForUser(ctx, principal)
	if err != nil {
		return nil, err
	}
	owner := principal.UserID.String()
	if user, err := s.users.FindByID(ctx, principal.UserID); err == nil {
		owner = user.Username
	}
	now := s.contracts.now()
	body, err := s.excel.Generate(excel.Register{
		Owner:       owner,
		GeneratedAt: now,
		Contracts:   views,
	})
	if err != nil {
		return nil, err
	}
	return &Document{
		Filename:    "contracts-" + now.Format("20060102") + ".xlsx",
		ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		Body:        body,
	}, nil
}
