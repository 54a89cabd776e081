package http

import apperrors "github.com/utafrali/CitizenPortal/pkg/errors"

var (
	errMissingProductID = apperrors.InvalidInput("productId is required")
	errMissingOrderID   = apperrors.InvalidInput("order_id is required")
)
