package api

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/lookupd/lookupd/pkg/manager"
	"github.com/lookupd/lookupd/pkg/namespace"
	"github.com/lookupd/lookupd/pkg/store"
)

// API errors
var (
	// ErrNamespaceNotFound is returned for requests against unknown namespaces
	ErrNamespaceNotFound = fiber.NewError(fiber.StatusNotFound, "namespace not found")
	// ErrKeyNotFound is returned when a forward lookup finds no value
	ErrKeyNotFound = fiber.NewError(fiber.StatusNotFound, "key not found")
	// ErrNamespaceDeleting is returned when registering over an in-flight deletion
	ErrNamespaceDeleting = fiber.NewError(fiber.StatusConflict, "namespace deletion in progress")
)

type handlers struct {
	manager manager.Service
	log     logrus.FieldLogger
}

func newHandlers(mgr manager.Service, log logrus.FieldLogger) *handlers {
	return &handlers{
		manager: mgr,
		log:     log.WithField("component", "api.handlers"),
	}
}

func (h *handlers) register(router fiber.Router) {
	router.Get("/namespaces", h.listNamespaces)
	router.Post("/namespaces", h.createNamespace)
	router.Get("/namespaces/:name", h.getNamespace)
	router.Delete("/namespaces/:name", h.deleteNamespace)
	router.Get("/namespaces/:name/keys/:key", h.lookup)
	router.Get("/namespaces/:name/values", h.reverseLookupEmpty)
	router.Get("/namespaces/:name/values/:value", h.reverseLookup)
}

func (h *handlers) listNamespaces(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"namespaces": h.manager.Registrations(),
	})
}

func (h *handlers) createNamespace(c fiber.Ctx) error {
	var def namespace.Definition
	if err := c.Bind().Body(&def); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid namespace definition")
	}

	created, err := h.manager.Schedule(&def)
	switch {
	case errors.Is(err, manager.ErrNamespaceDeleting):
		return ErrNamespaceDeleting
	case errors.Is(err, manager.ErrManagerStopped):
		return fiber.NewError(fiber.StatusServiceUnavailable, "cache manager is stopped")
	case err != nil:
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}

	return c.Status(status).JSON(fiber.Map{
		"name":      def.Name,
		"scheduled": created,
	})
}

func (h *handlers) getNamespace(c fiber.Ctx) error {
	info, ok := h.manager.Registration(c.Params("name"))
	if !ok {
		return ErrNamespaceNotFound
	}

	return c.JSON(info)
}

func (h *handlers) deleteNamespace(c fiber.Ctx) error {
	name := c.Params("name")

	deleted, err := h.manager.Delete(name)
	if err != nil {
		h.log.WithError(err).WithField("namespace", name).Error("Failed to delete namespace")
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	if !deleted {
		return ErrNamespaceNotFound
	}

	return c.JSON(fiber.Map{"name": name, "deleted": true})
}

func (h *handlers) lookup(c fiber.Ctx) error {
	name := c.Params("name")
	key := c.Params("key")

	value, found, err := h.manager.Lookup(name, key)
	if errors.Is(err, store.ErrUnknownNamespace) {
		return ErrNamespaceNotFound
	}
	if err != nil {
		return err
	}
	if !found {
		return ErrKeyNotFound
	}

	return c.JSON(fiber.Map{"key": key, "value": value})
}

func (h *handlers) reverseLookup(c fiber.Ctx) error {
	return h.respondReverse(c, c.Params("name"), c.Params("value"))
}

// reverseLookupEmpty answers reverse lookups for the empty/null value bucket
func (h *handlers) reverseLookupEmpty(c fiber.Ctx) error {
	return h.respondReverse(c, c.Params("name"), "")
}

func (h *handlers) respondReverse(c fiber.Ctx, name, value string) error {
	keys, err := h.manager.ReverseLookup(name, value)
	if errors.Is(err, store.ErrUnknownNamespace) {
		return ErrNamespaceNotFound
	}
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"value": value, "keys": keys})
}
