package handlers

var messages = map[string]map[string]string{
	"en": {
		"generated":          "Image generated successfully",
		"health":             "Photobooth server is running",
		"prompt_required":    "A visual description is mandatory",
		"image_required":     "An image is required",
		"unsupported_media":  "Only JPEG, PNG and WEBP images are allowed",
		"upload_too_large":   "The image exceeds the maximum upload size",
		"bad_request":        "The request could not be read",
		"not_found":          "The file does not exist or has expired",
		"credential_missing": "The image generator is not configured",
		"no_image":           "The generator did not return an image",
		"provider_failure":   "The image generator failed",
		"timeout":            "Image generation took too long",
		"processing_failed":  "The generated image could not be processed",
		"internal":           "Error generating the image",
	},
	"es": {
		"generated":          "Imagen generada con éxito",
		"health":             "Servidor de photobooth funcionando",
		"prompt_required":    "La descripción visual es obligatoria",
		"image_required":     "Se requiere una imagen",
		"unsupported_media":  "Solo se permiten imágenes JPEG, PNG y WEBP",
		"upload_too_large":   "La imagen supera el tamaño máximo permitido",
		"bad_request":        "No se pudo leer la solicitud",
		"not_found":          "El archivo no existe o ha expirado",
		"credential_missing": "El generador de imágenes no está configurado",
		"no_image":           "El generador no devolvió ninguna imagen",
		"provider_failure":   "Falló el generador de imágenes",
		"timeout":            "La generación de la imagen tardó demasiado",
		"processing_failed":  "No se pudo procesar la imagen generada",
		"internal":           "Error al generar la imagen",
	},
}

func message(locale, key string) string {
	if m, ok := messages[locale][key]; ok {
		return m
	}
	if m, ok := messages["en"][key]; ok {
		return m
	}
	return key
}
