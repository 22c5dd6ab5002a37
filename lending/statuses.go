// Package lending holds the JuloOne application and Autodebet-BCA registration workflows: their statuses, the
// handlers bound to them, the follow-up tasks those handlers enqueue and the batch jobs that expire stale entities.
package lending

import (
	_ "embed"

	"github.com/julo/statusflow"
	"github.com/julo/statusflow/definition"
)

const (
	WorkflowJuloOne      = "JuloOne"
	WorkflowAutodebetBCA = "Autodebet-BCA"
)

// JuloOne application statuses.
const (
	StatusFormCreated            statusflow.StatusCode = 100
	StatusFormPartial            statusflow.StatusCode = 105
	StatusFormPartialExpired     statusflow.StatusCode = 106
	StatusFormSubmitted          statusflow.StatusCode = 110
	StatusDocumentsSubmitted     statusflow.StatusCode = 120
	StatusScrapedDataVerified    statusflow.StatusCode = 121
	StatusDocumentsVerified      statusflow.StatusCode = 124
	StatusFlaggedForFraud        statusflow.StatusCode = 133
	StatusApplicationDenied      statusflow.StatusCode = 135
	StatusCancelledByCustomer    statusflow.StatusCode = 137
	StatusOfferAccepted          statusflow.StatusCode = 141
	StatusActivationCallSuccess  statusflow.StatusCode = 150
	StatusLegalAgreementSigned   statusflow.StatusCode = 160
	StatusFundDisbursalOngoing   statusflow.StatusCode = 170
	StatusFundDisbursalFailed    statusflow.StatusCode = 175
	StatusFundDisbursalSucceeded statusflow.StatusCode = 180
	StatusCustomerOnDeletion     statusflow.StatusCode = 185
	StatusCustomerDeleted        statusflow.StatusCode = 186
	StatusLocApproved            statusflow.StatusCode = 190
)

// Autodebet-BCA registration statuses.
const (
	StatusAutodebetPendingRegistration statusflow.StatusCode = 410
	StatusAutodebetRegistered          statusflow.StatusCode = 420
	StatusAutodebetRegistrationFailed  statusflow.StatusCode = 421
	StatusAutodebetPendingRevocation   statusflow.StatusCode = 430
	StatusAutodebetRevoked             statusflow.StatusCode = 431
	StatusAutodebetSuspended           statusflow.StatusCode = 440
)

//go:embed workflows.yaml
var workflowsYAML []byte

// Definition returns the parsed workflow document. Each call returns a fresh copy.
func Definition() (*definition.Document, error) {
	return definition.ParseBytes(workflowsYAML)
}

// Schemas builds the shared status registry and both lending schemas.
func Schemas() (*statusflow.StatusRegistry, []*statusflow.Schema, error) {
	doc, err := Definition()
	if err != nil {
		return nil, nil, err
	}

	return doc.Build()
}
