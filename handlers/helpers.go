package handlers

import (
	"errors"

	"github.com/edmondmuhia/mentor_marketplace/services"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

// currentUserID pulls the authenticated user's id out of the JWT placed in
// Locals by the Protected middleware.
func currentUserID(c *fiber.Ctx) (uuid.UUID, error) {
	token, ok := c.Locals("user").(*jwt.Token)
	if !ok {
		return uuid.Nil, errors.New("missing token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, errors.New("malformed claims")
	}
	raw, ok := claims["user_id"].(string)
	if !ok {
		return uuid.Nil, errors.New("malformed claims")
	}
	return uuid.Parse(raw)
}

// respondServiceError maps a service-layer failure onto the wire. Known
// business errors carry their own status and code; anything else is a 500.
func respondServiceError(c *fiber.Ctx, err error) error {
	var svcErr *services.ServiceError
	if errors.As(err, &svcErr) {
		return c.Status(svcErr.HTTPStatus()).JSON(fiber.Map{
			"error": svcErr.Message,
			"code":  svcErr.Code,
		})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Something went wrong"})
}
